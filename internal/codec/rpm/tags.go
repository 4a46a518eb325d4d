package rpm

import (
	"fmt"
	"strings"

	"github.com/sassoftware/go-rpmutils"
)

// Header tags read during conversion
const (
	tagName            = 1000
	tagVersion         = 1001
	tagRelease         = 1002
	tagEpoch           = 1003
	tagSummary         = 1004
	tagDescription     = 1005
	tagBuildTime       = 1006
	tagVendor          = 1011
	tagLicense         = 1014
	tagPackager        = 1015
	tagGroup           = 1016
	tagURL             = 1020
	tagArch            = 1022
	tagPreIn           = 1023
	tagPostIn          = 1024
	tagPreUn           = 1025
	tagPostUn          = 1026
	tagProvideName     = 1047
	tagRequireFlags    = 1048
	tagRequireName     = 1049
	tagRequireVersion  = 1050
	tagConflictFlags   = 1053
	tagConflictName    = 1054
	tagConflictVersion = 1055
	tagChangelogTime   = 1080
	tagChangelogName   = 1081
	tagChangelogText   = 1082
	tagPreInProg       = 1085
	tagPostInProg      = 1086
	tagPreUnProg       = 1087
	tagPostUnProg      = 1088
	tagObsoleteName    = 1090
	tagPrefixes        = 1098
	tagSourcePackage   = 1106
	tagProvideFlags    = 1112
	tagProvideVersion  = 1113
	tagObsoleteFlags   = 1114
	tagObsoleteVersion = 1115
	tagSuggestName     = 5049
	tagSuggestVersion  = 5050
	tagSuggestFlags    = 5051
)

// Dependency sense flags
const (
	senseLess    = 0x02
	senseGreater = 0x04
	senseEqual   = 0x08
)

// File flags
const (
	fileFlagConfig = 1 << 0
	fileFlagDoc    = 1 << 1
	fileFlagGhost  = 1 << 6
)

// getStringTag safely gets a string tag from RPM
func getStringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil || val == nil {
		return ""
	}

	// Handle different types that might be returned
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	default:
		// Try to convert to string using fmt
		return fmt.Sprintf("%v", v)
	}

	return ""
}

// getIntsTag returns every value of an integer tag, whatever width it was stored with
func getIntsTag(rpm *rpmutils.Rpm, tag int) []int64 {
	val, err := rpm.Header.Get(tag)
	if err != nil || val == nil {
		return nil
	}
	var out []int64
	switch v := val.(type) {
	case int:
		out = append(out, int64(v))
	case int64:
		out = append(out, v)
	case []int:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []int32:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []uint32:
		for _, i := range v {
			out = append(out, int64(i))
		}
	case []int64:
		out = append(out, v...)
	case []uint64:
		for _, i := range v {
			out = append(out, int64(i))
		}
	}
	return out
}

// getIntTag safely gets an integer tag from RPM
func getIntTag(rpm *rpmutils.Rpm, tag int) (int64, bool) {
	vals := getIntsTag(rpm, tag)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// getStringSliceTag gets a string array tag, keeping empty entries so that
// parallel arrays (names, flags, versions) stay aligned
func getStringSliceTag(rpm *rpmutils.Rpm, tag int) []string {
	val, err := rpm.Header.Get(tag)
	if err != nil || val == nil {
		return nil
	}
	switch v := val.(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimSpace(s)
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
