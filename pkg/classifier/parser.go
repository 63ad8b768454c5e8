package classifier

import (
	"fmt"
	"strings"
)

// knownActions are the bare words the parser treats as an action:
// xcodebuild's actions plus every entry of allowedActions and
// deniedActions. It exists only so the parser can correctly separate an
// action token from an unrecognized bare word, independent of whether the
// classifier's policy will later accept or deny that action.
var knownActions = map[string]struct{}{
	"notarize":            {},
	"altool":              {},
	"staple":              {},
	"build":               {},
	"build-for-testing":   {},
	"analyze":             {},
	"archive":             {},
	"test":                {},
	"test-without-building": {},
	"installsrc":          {},
	"install":             {},
	"clean":               {},
	"docbuild":            {},
	"exportArchive":       {},
	"exportNotarizedApp":  {},
	"exportLocalizations": {},
	"importLocalizations": {},
}

// knownValueFlags are every xcodebuild flag that takes a value, regardless
// of whether the classifier's policy later allows it. This broad set is
// what lets the parser consume the right number of tokens without peeking
// at values that merely happen to start with "-".
var knownValueFlags = map[string]struct{}{
	"-workspace":                                       {},
	"-project":                                         {},
	"-target":                                          {},
	"-alltargets":                                      {},
	"-scheme":                                           {},
	"-destination":                                      {},
	"-configuration":                                    {},
	"-arch":                                             {},
	"-sdk":                                              {},
	"-toolchain":                                        {},
	"-jobs":                                             {},
	"-parallelizeTargets":                               {},
	"-showBuildTimingSummary":                           {},
	"-resultBundlePath":                                 {},
	"-derivedDataPath":                                  {},
	"-archivePath":                                      {},
	"-exportPath":                                       {},
	"-exportOptionsPlist":                               {},
	"-clonedSourcePackagesDirPath":                       {},
	"-xctestrun":                                        {},
	"-testPlan":                                         {},
	"-only-testing":                                     {},
	"-skip-testing":                                     {},
	"-maximum-concurrent-test-device-destinations":      {},
	"-maximum-concurrent-test-simulator-destinations":   {},
	"-test-iterations":                                  {},
	"-retry-tests-on-failure":                            {},
	"-test-repetition-relaunch-enabled":                 {},
	"-resultStreamPath":                                 {},
	"-IDEPackageSupportUseBuiltinSCM":                    {},
	"-skipPackagePluginValidation":                       {},
	"-skipMacroValidation":                               {},
	"-xcconfig":                                          {},
	"-xctarget":                                          {},
	"-xcroot":                                            {},
	"-buildstyle":                                        {},
	"-installpath":                                       {},
	"-objroot":                                           {},
	"-symroot":                                           {},
	"-dstroot":                                           {},
	"-exportLanguage":                                    {},
	"-localizationPath":                                  {},
	"-localization":                                      {},
}

// knownBooleanFlags are every xcodebuild flag that never takes a value.
var knownBooleanFlags = map[string]struct{}{
	"-quiet":                               {},
	"-verbose":                             {},
	"-hideShellScriptEnvironment":          {},
	"-showsdks":                            {},
	"-showdestinations":                   {},
	"-showBuildSettings":                   {},
	"-showBuildSettingsForIndex":          {},
	"-list":                                {},
	"-find-executable":                     {},
	"-find-library":                        {},
	"-version":                             {},
	"-usage":                               {},
	"-license":                             {},
	"-checkFirstLaunchStatus":              {},
	"-runFirstLaunch":                      {},
	"-downloadPlatform":                    {},
	"-downloadAllPlatforms":                {},
	"-exportNotarizedApp":                  {},
	"-enableCodeCoverage":                  {},
	"-disableCodeCoverage":                 {},
	"-enableAddressSanitizer":              {},
	"-enableThreadSanitizer":               {},
	"-enableUndefinedBehaviorSanitizer":    {},
	"-testLanguage":                        {},
	"-testRegion":                          {},
	"-parallel-testing-enabled":            {},
	"-allowProvisioningUpdates":            {},
	"-allowProvisioningDeviceRegistration": {},
	"-showTestPlans":                       {},
	"-json":                                {},
	"-dry-run":                             {},
	"-n":                                   {},
}

// FlagValue is a single parsed flag and its value, if any. Boolean flags
// have a nil Value.
type FlagValue struct {
	Name  string
	Value *string
}

// BuildSetting is a single parsed KEY=VALUE build setting.
type BuildSetting struct {
	Key   string
	Value string
}

// ParsedArgv is the structured result of parsing an xcodebuild argv. It
// carries no policy judgment: classify applies the allow/deny lists
// separately against this shape.
type ParsedArgv struct {
	Action        string // empty if absent
	Flags         []FlagValue
	BuildSettings []BuildSetting
}

// parseArgv parses argv (the arguments after "xcodebuild" itself) into a
// ParsedArgv, or returns a parse error.
//
// Per the resolved open question on "unknown flag — might take a value":
// the parser never peeks at the following token to guess whether an
// unrecognized flag takes a value. An unrecognized "-flag" is always
// parsed as boolean (no value consumed); only the classifier step decides
// whether that makes it UnknownFlag or DeniedFlag. This keeps the parser
// total and independent of the allow-list.
func parseArgv(argv []string) (ParsedArgv, error) {
	var parsed ParsedArgv

	i := 0
	for i < len(argv) {
		arg := argv[i]

		if !strings.HasPrefix(arg, "-") && !strings.Contains(arg, "=") {
			if _, ok := knownActions[arg]; ok {
				if parsed.Action != "" {
					return ParsedArgv{}, fmt.Errorf("multiple actions specified: %s and %s", parsed.Action, arg)
				}
				parsed.Action = arg
				i++
				continue
			}
			return ParsedArgv{}, fmt.Errorf("unknown bare word: %s", arg)
		}

		if !strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			key, value, _ := strings.Cut(arg, "=")
			parsed.BuildSettings = append(parsed.BuildSettings, BuildSetting{Key: key, Value: value})
			i++
			continue
		}

		// arg starts with "-" from here on.
		if eqIdx := strings.Index(arg, "="); eqIdx >= 0 {
			flag := arg[:eqIdx]
			value := arg[eqIdx+1:]
			parsed.Flags = append(parsed.Flags, FlagValue{Name: flag, Value: &value})
			i++
			continue
		}

		if _, ok := knownBooleanFlags[arg]; ok {
			parsed.Flags = append(parsed.Flags, FlagValue{Name: arg})
			i++
			continue
		}

		if _, ok := knownValueFlags[arg]; ok {
			if i+1 >= len(argv) {
				return ParsedArgv{}, fmt.Errorf("flag %s requires a value", arg)
			}
			value := argv[i+1]
			parsed.Flags = append(parsed.Flags, FlagValue{Name: arg, Value: &value})
			i += 2
			continue
		}

		// Unrecognized flag: never peek. Always boolean.
		parsed.Flags = append(parsed.Flags, FlagValue{Name: arg})
		i++
	}

	return parsed, nil
}
