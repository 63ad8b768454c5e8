// Package classifier implements the deny-by-default argv classifier: it
// reduces an untrusted xcodebuild command line to a canonical,
// policy-checked invocation, or rejects it with a machine-readable reason.
// Classify is pure and deterministic; it performs no I/O.
package classifier

import (
	"fmt"
	"sort"
)

// allowedActions are the only actions classify will accept.
var allowedActions = map[string]struct{}{
	"build": {},
	"test":  {},
}

// deniedActions are explicitly rejected before the allow-list is even
// consulted, so the rejection reason names the denial rather than a
// generic "not allowed".
var deniedActions = map[string]struct{}{
	"archive":             {},
	"exportArchive":       {},
	"exportNotarizedApp":  {},
	"notarize":            {},
	"altool":               {},
	"staple":              {},
}

// deniedFlags are flags the worker itself owns; a caller supplying them
// is always rejected regardless of value.
var deniedFlags = map[string]struct{}{
	"-resultBundlePath": {},
	"-derivedDataPath":  {},
}

// allowedValueFlags are the value-taking flags classify will pass through
// once their value clears policy.
var allowedValueFlags = map[string]struct{}{
	"-workspace":     {},
	"-project":       {},
	"-scheme":        {},
	"-destination":   {},
	"-configuration": {},
	"-sdk":           {},
	"-arch":          {},
	"-target":        {},
}

// allowedBooleanFlags are the boolean flags classify will pass through
// unconditionally.
var allowedBooleanFlags = map[string]struct{}{
	"-quiet":              {},
	"-verbose":             {},
	"-enableCodeCoverage":  {},
	"-showBuildSettings":   {},
	"-showdestinations":    {},
}

// Config is the immutable per-run classifier policy. Workspace and
// Project are mutually exclusive; an empty string means "unset" for every
// field. AllowedSchemes and AllowedConfigurations are sets; an empty set
// means "no constraint" except that AllowedSchemes additionally makes
// "-scheme" a required flag once non-empty.
type Config struct {
	Workspace             string
	Project               string
	AllowedSchemes        map[string]struct{}
	AllowedDestination    string
	AllowedConfigurations map[string]struct{}
}

// MatchedConstraints records which policy-relevant flag values an accepted
// invocation actually carried.
type MatchedConstraints struct {
	Workspace     string
	Project       string
	Scheme        string
	Destination   string
	Configuration string
}

// RejectionReason is a closed taxonomy of machine-readable rejection
// causes. Each concrete type below implements it.
type RejectionReason interface {
	// Code returns a stable machine-readable identifier, e.g.
	// "UNKNOWN_FLAG:-badFlag".
	Code() string
}

type ParseError struct{ Message string }

func (r ParseError) Code() string { return fmt.Sprintf("PARSE_ERROR:%s", r.Message) }

type DeniedAction struct{ Action string }

func (r DeniedAction) Code() string { return fmt.Sprintf("DENIED_ACTION:%s", r.Action) }

type UnknownAction struct{ Action string }

func (r UnknownAction) Code() string { return fmt.Sprintf("UNKNOWN_ACTION:%s", r.Action) }

type DeniedFlag struct{ Flag string }

func (r DeniedFlag) Code() string { return fmt.Sprintf("DENIED_FLAG:%s", r.Flag) }

type UnknownFlag struct{ Flag string }

func (r UnknownFlag) Code() string { return fmt.Sprintf("UNKNOWN_FLAG:%s", r.Flag) }

type WorkspaceMismatch struct{ Got, Expected string }

func (r WorkspaceMismatch) Code() string {
	return fmt.Sprintf("WORKSPACE_MISMATCH:%s!=%s", r.Got, r.Expected)
}

type ProjectMismatch struct{ Got, Expected string }

func (r ProjectMismatch) Code() string {
	return fmt.Sprintf("PROJECT_MISMATCH:%s!=%s", r.Got, r.Expected)
}

type SchemeMismatch struct{ Scheme string }

func (r SchemeMismatch) Code() string { return fmt.Sprintf("SCHEME_MISMATCH:%s", r.Scheme) }

type DestinationMismatch struct{ Got, Expected string }

func (r DestinationMismatch) Code() string {
	return fmt.Sprintf("DESTINATION_MISMATCH:%s!=%s", r.Got, r.Expected)
}

type ConfigurationMismatch struct{ Configuration string }

func (r ConfigurationMismatch) Code() string {
	return fmt.Sprintf("CONFIGURATION_MISMATCH:%s", r.Configuration)
}

type MissingRequiredFlag struct{ Flag string }

func (r MissingRequiredFlag) Code() string { return fmt.Sprintf("MISSING_REQUIRED_FLAG:%s", r.Flag) }

// Result is the tagged union classify produces: either Accepted is true
// and Action/SanitizedArgv/MatchedConstraints are populated, or Accepted
// is false and RejectedFlags/RejectionReasons explain why.
type Result struct {
	Accepted           bool
	Action             string
	SanitizedArgv      []string
	RejectedFlags      []string
	RejectionReasons   []RejectionReason
	MatchedConstraints MatchedConstraints
}

// RejectionCodes returns the machine-readable codes for every rejection
// reason, in order.
func (r Result) RejectionCodes() []string {
	codes := make([]string, len(r.RejectionReasons))
	for i, reason := range r.RejectionReasons {
		codes[i] = reason.Code()
	}
	return codes
}

func rejected(flags []string, reasons []RejectionReason) Result {
	return Result{RejectedFlags: flags, RejectionReasons: reasons}
}

// Classify reduces argv (the arguments after "xcodebuild" itself) to a
// canonical, policy-checked invocation per cfg, or explains why it was
// rejected. Classify is pure: it performs no I/O and has no side effects.
func Classify(argv []string, cfg Config) Result {
	parsed, err := parseArgv(argv)
	if err != nil {
		return rejected(nil, []RejectionReason{ParseError{Message: err.Error()}})
	}

	action := parsed.Action
	if action == "" {
		action = "build"
	} else {
		if _, denied := deniedActions[action]; denied {
			return rejected(nil, []RejectionReason{DeniedAction{Action: action}})
		}
		if _, allowed := allowedActions[action]; !allowed {
			return rejected(nil, []RejectionReason{UnknownAction{Action: action}})
		}
	}

	var (
		rejectedFlags []string
		reasons       []RejectionReason
		matched       MatchedConstraints
		sanitized     = make(map[string]*string)
	)

	for _, fv := range parsed.Flags {
		if _, denied := deniedFlags[fv.Name]; denied {
			rejectedFlags = append(rejectedFlags, fv.Name)
			reasons = append(reasons, DeniedFlag{Flag: fv.Name})
			continue
		}

		_, withValue := allowedValueFlags[fv.Name]
		_, boolean := allowedBooleanFlags[fv.Name]
		if !withValue && !boolean {
			rejectedFlags = append(rejectedFlags, fv.Name)
			reasons = append(reasons, UnknownFlag{Flag: fv.Name})
			continue
		}

		switch fv.Name {
		case "-workspace":
			if fv.Value == nil {
				continue
			}
			if cfg.Workspace != "" && *fv.Value != cfg.Workspace {
				reasons = append(reasons, WorkspaceMismatch{Got: *fv.Value, Expected: cfg.Workspace})
				continue
			}
			matched.Workspace = *fv.Value
			sanitized[fv.Name] = fv.Value
		case "-project":
			if fv.Value == nil {
				continue
			}
			if cfg.Project != "" && *fv.Value != cfg.Project {
				reasons = append(reasons, ProjectMismatch{Got: *fv.Value, Expected: cfg.Project})
				continue
			}
			matched.Project = *fv.Value
			sanitized[fv.Name] = fv.Value
		case "-scheme":
			if fv.Value == nil {
				continue
			}
			if len(cfg.AllowedSchemes) > 0 {
				if _, ok := cfg.AllowedSchemes[*fv.Value]; !ok {
					reasons = append(reasons, SchemeMismatch{Scheme: *fv.Value})
					continue
				}
			}
			matched.Scheme = *fv.Value
			sanitized[fv.Name] = fv.Value
		case "-destination":
			if fv.Value == nil {
				continue
			}
			if cfg.AllowedDestination != "" && *fv.Value != cfg.AllowedDestination {
				reasons = append(reasons, DestinationMismatch{Got: *fv.Value, Expected: cfg.AllowedDestination})
				continue
			}
			matched.Destination = *fv.Value
			sanitized[fv.Name] = fv.Value
		case "-configuration":
			if fv.Value == nil {
				continue
			}
			if len(cfg.AllowedConfigurations) > 0 {
				if _, ok := cfg.AllowedConfigurations[*fv.Value]; !ok {
					reasons = append(reasons, ConfigurationMismatch{Configuration: *fv.Value})
					continue
				}
			}
			matched.Configuration = *fv.Value
			sanitized[fv.Name] = fv.Value
		default:
			sanitized[fv.Name] = fv.Value
		}
	}

	if len(reasons) > 0 {
		return rejected(rejectedFlags, reasons)
	}

	if len(cfg.AllowedSchemes) > 0 && matched.Scheme == "" {
		return rejected(rejectedFlags, []RejectionReason{MissingRequiredFlag{Flag: "-scheme"}})
	}

	flagNames := make([]string, 0, len(sanitized))
	for name := range sanitized {
		flagNames = append(flagNames, name)
	}
	sort.Strings(flagNames)

	sanitizedArgv := make([]string, 0, 1+2*len(flagNames))
	sanitizedArgv = append(sanitizedArgv, action)
	for _, name := range flagNames {
		sanitizedArgv = append(sanitizedArgv, name)
		if v := sanitized[name]; v != nil {
			sanitizedArgv = append(sanitizedArgv, *v)
		}
	}

	return Result{
		Accepted:           true,
		Action:             action,
		SanitizedArgv:      sanitizedArgv,
		MatchedConstraints: matched,
	}
}
