package settings

import "regexp"

// Group is a named bucket of entries for display.
type Group struct {
	Name  string  `json:"name"`
	Items []Entry `json:"items"`
}

// categoryRule buckets entries by key-name shape. Rules are evaluated in
// order: every *Mod key is an on-screen binding (modifiers such as
// ButtonOffscreenMod included), then Button keys split on whether they carry
// an Offscreen qualifier.
type categoryRule struct {
	re   *regexp.Regexp
	name string
}

const (
	groupDevice       = "Device & Ports"
	groupCalibration  = "Calibration"
	groupCamera       = "Camera & Exposure"
	groupRecoil       = "Recoil"
	groupButtonsOn    = "Buttons (On-screen)"
	groupButtonsOff   = "Buttons (Off-screen)"
	groupJoystickMode = "Joystick Mode"
	groupOther        = "Other"
)

var categoryRules = []categoryRule{
	{regexp.MustCompile(`^(SerialPort|VideoDevice)`), groupDevice},
	{regexp.MustCompile(`^(Calibrate|Offset|ColourMatch|GangstaSetting|CameraRes|EnableCalibration|AutoSaveCalibration)`), groupCalibration},
	{regexp.MustCompile(`^(CameraExposure|CameraBrightness|CameraContrast|MatchOnlyWherePointing|OffscreenReload|ConsoleOutputVerbose)`), groupCamera},
	{regexp.MustCompile(`^(IAgreeRecoil|EnableRecoil|Recoil|TriggerRecoil|AutoRecoil)`), groupRecoil},
	{regexp.MustCompile(`Mod$`), groupButtonsOn},
	{regexp.MustCompile(`^Button.*Offscreen`), groupButtonsOff},
	{regexp.MustCompile(`^Button`), groupButtonsOn},
	{regexp.MustCompile(`^JoystickMode`), groupJoystickMode},
}

// groupOrder fixes the display order of buckets.
var groupOrder = []string{
	groupDevice, groupCalibration, groupCamera, groupRecoil,
	groupButtonsOn, groupButtonsOff, groupJoystickMode, groupOther,
}

func categoryFor(key string) string {
	for _, rule := range categoryRules {
		if rule.re.MatchString(key) {
			return rule.name
		}
	}
	return groupOther
}

// GroupByCategory buckets entries into display groups, omitting empty ones.
func GroupByCategory(entries []Entry) []Group {
	buckets := make(map[string][]Entry)
	for _, e := range entries {
		name := categoryFor(e.Key)
		buckets[name] = append(buckets[name], e)
	}
	var out []Group
	for _, name := range groupOrder {
		if items := buckets[name]; len(items) > 0 {
			out = append(out, Group{Name: name, Items: items})
		}
	}
	return out
}
