package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"math"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

// family groups built-in datatypes by value space, which decides how
// ordered facets compare values
type family int

const (
	stringFamily family = iota
	decimalFamily
	floatFamily
	booleanFamily
	temporalFamily
	binaryFamily
)

const (
	preserveSpace = "preserve"
	replaceSpace  = "replace"
	collapseSpace = "collapse"
)

// datatype describes a built-in simple type
type datatype struct {
	family     family
	whitespace string
	lexical    func(string) bool
	bounds     *[2]*big.Int // inclusive integer range, nil bound for unbounded
}

var (
	ncNamePattern   = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_.\-\x{B7}\p{Mn}]*$`)
	namePattern     = regexp.MustCompile(`^[\p{L}_:][\p{L}\p{N}_.:\-\x{B7}\p{Mn}]*$`)
	nmtokenPattern  = regexp.MustCompile(`^[\p{L}\p{N}_.:\-\x{B7}\p{Mn}]+$`)
	languagePattern = regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)
	decimalPattern  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerPattern  = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern    = regexp.MustCompile(`^([+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?|[+-]?INF|NaN)$`)
	durationPattern = regexp.MustCompile(`^-?P((\d+Y)?(\d+M)?(\d+D)?)(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	tzPattern       = `(Z|[+-]((0\d|1[0-3]):[0-5]\d|14:00))?`
	yearPattern     = `-?([1-9]\d{3,}|0\d{3})`
	timeOfDay       = `(([01]\d|2[0-3]):[0-5]\d:[0-5]\d(\.\d+)?|24:00:00(\.0+)?)`
	dateTimePattern = regexp.MustCompile(`^` + yearPattern + `-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])T` + timeOfDay + tzPattern + `$`)
	datePattern     = regexp.MustCompile(`^` + yearPattern + `-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])` + tzPattern + `$`)
	timePattern     = regexp.MustCompile(`^` + timeOfDay + tzPattern + `$`)
	gYearMonthRe    = regexp.MustCompile(`^` + yearPattern + `-(0[1-9]|1[0-2])` + tzPattern + `$`)
	gYearRe         = regexp.MustCompile(`^` + yearPattern + tzPattern + `$`)
	gMonthDayRe     = regexp.MustCompile(`^--(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])` + tzPattern + `$`)
	gDayRe          = regexp.MustCompile(`^---(0[1-9]|[12]\d|3[01])` + tzPattern + `$`)
	gMonthRe        = regexp.MustCompile(`^--(0[1-9]|1[0-2])` + tzPattern + `$`)
)

var (
	datatypes    = registerDatatypes()
	builtinTypes = registerBuiltinTypes(datatypes)
)

func registerDatatypes() map[string]datatype {
	anyValue := func(string) bool { return true }
	tokens := func(check func(string) bool) func(string) bool {
		return func(v string) bool {
			fields := strings.Fields(v)
			if len(fields) == 0 {
				return false
			}
			for _, f := range fields {
				if !check(f) {
					return false
				}
			}
			return true
		}
	}
	integer := func(lo, hi string) datatype {
		bounds := [2]*big.Int{parseBig(lo), parseBig(hi)}
		return datatype{family: decimalFamily, whitespace: collapseSpace, lexical: integerPattern.MatchString, bounds: &bounds}
	}
	collapsed := func(f family, lexical func(string) bool) datatype {
		return datatype{family: f, whitespace: collapseSpace, lexical: lexical}
	}

	defs := map[string]datatype{
		"anySimpleType":      {family: stringFamily, whitespace: preserveSpace, lexical: anyValue},
		"string":             {family: stringFamily, whitespace: preserveSpace, lexical: anyValue},
		"normalizedString":   {family: stringFamily, whitespace: replaceSpace, lexical: anyValue},
		"token":              collapsed(stringFamily, anyValue),
		"language":           collapsed(stringFamily, languagePattern.MatchString),
		"Name":               collapsed(stringFamily, namePattern.MatchString),
		"NCName":             collapsed(stringFamily, ncNamePattern.MatchString),
		"ID":                 collapsed(stringFamily, ncNamePattern.MatchString),
		"IDREF":              collapsed(stringFamily, ncNamePattern.MatchString),
		"ENTITY":             collapsed(stringFamily, ncNamePattern.MatchString),
		"NMTOKEN":            collapsed(stringFamily, nmtokenPattern.MatchString),
		"IDREFS":             collapsed(stringFamily, tokens(ncNamePattern.MatchString)),
		"ENTITIES":           collapsed(stringFamily, tokens(ncNamePattern.MatchString)),
		"NMTOKENS":           collapsed(stringFamily, tokens(nmtokenPattern.MatchString)),
		"QName":              collapsed(stringFamily, validQName),
		"NOTATION":           collapsed(stringFamily, validQName),
		"anyURI":             collapsed(stringFamily, validAnyURI),
		"boolean":            collapsed(booleanFamily, validBoolean),
		"decimal":            collapsed(decimalFamily, decimalPattern.MatchString),
		"float":              collapsed(floatFamily, validFloat(32)),
		"double":             collapsed(floatFamily, validFloat(64)),
		"duration":           collapsed(temporalFamily, validDuration),
		"dateTime":           collapsed(temporalFamily, dateTimePattern.MatchString),
		"date":               collapsed(temporalFamily, datePattern.MatchString),
		"time":               collapsed(temporalFamily, timePattern.MatchString),
		"gYearMonth":         collapsed(temporalFamily, gYearMonthRe.MatchString),
		"gYear":              collapsed(temporalFamily, gYearRe.MatchString),
		"gMonthDay":          collapsed(temporalFamily, gMonthDayRe.MatchString),
		"gDay":               collapsed(temporalFamily, gDayRe.MatchString),
		"gMonth":             collapsed(temporalFamily, gMonthRe.MatchString),
		"hexBinary":          collapsed(binaryFamily, validHexBinary),
		"base64Binary":       collapsed(binaryFamily, validBase64Binary),
		"integer":            integer("", ""),
		"nonPositiveInteger": integer("", "0"),
		"negativeInteger":    integer("", "-1"),
		"nonNegativeInteger": integer("0", ""),
		"positiveInteger":    integer("1", ""),
		"long":               integer("-9223372036854775808", "9223372036854775807"),
		"int":                integer("-2147483648", "2147483647"),
		"short":              integer("-32768", "32767"),
		"byte":               integer("-128", "127"),
		"unsignedLong":       integer("0", "18446744073709551615"),
		"unsignedInt":        integer("0", "4294967295"),
		"unsignedShort":      integer("0", "65535"),
		"unsignedByte":       integer("0", "255"),
	}

	return defs
}

func registerBuiltinTypes(defs map[string]datatype) map[string]*SimpleType {
	types := make(map[string]*SimpleType, len(defs))
	for name := range defs {
		types[name] = &SimpleType{
			QName:   QName{Namespace: XSDNamespace, Local: name},
			Variety: AtomicVariety,
			builtin: name,
		}
	}
	return types
}

// builtinType returns the shared definition of a built-in datatype
func builtinType(local string) *SimpleType {
	return builtinTypes[local]
}

// IsBuiltinType reports whether local names a supported built-in datatype
func IsBuiltinType(local string) bool {
	_, ok := builtinTypes[local]
	return ok
}

// validBuiltin checks the lexical space (and range) of a built-in type
func validBuiltin(name, value string) bool {
	dt, ok := datatypes[name]
	if !ok {
		return true
	}
	if !dt.lexical(value) {
		return false
	}
	if dt.bounds != nil {
		n := parseBig(value)
		if n == nil {
			return false
		}
		if lo := dt.bounds[0]; lo != nil && n.Cmp(lo) < 0 {
			return false
		}
		if hi := dt.bounds[1]; hi != nil && n.Cmp(hi) > 0 {
			return false
		}
	}
	return true
}

func parseBig(value string) *big.Int {
	if value == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(value, "+"), 10)
	if !ok {
		return nil
	}
	return n
}

func validBoolean(v string) bool {
	switch v {
	case "true", "false", "1", "0":
		return true
	}
	return false
}

func validFloat(bits int) func(string) bool {
	return func(v string) bool {
		if !floatPattern.MatchString(v) {
			return false
		}
		switch strings.TrimLeft(v, "+-") {
		case "INF", "NaN":
			return true
		}
		f, err := strconv.ParseFloat(v, bits)
		if err != nil {
			// out of range values round to +-INF in XSD 1.0
			return math.IsInf(f, 0)
		}
		return true
	}
}

func validDuration(v string) bool {
	if !durationPattern.MatchString(v) || strings.HasSuffix(v, "T") {
		return false
	}
	// at least one component must follow P
	return strings.ContainsAny(strings.TrimLeft(v, "-P"), "YMDHS")
}

func validHexBinary(v string) bool {
	_, err := hex.DecodeString(v)
	return err == nil
}

func validBase64Binary(v string) bool {
	_, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(v), ""))
	return err == nil
}

func validAnyURI(v string) bool {
	_, err := url.Parse(strings.ReplaceAll(v, " ", "%20"))
	return err == nil
}

func validQName(v string) bool {
	prefix, local, found := strings.Cut(v, ":")
	if !found {
		return ncNamePattern.MatchString(v)
	}
	return ncNamePattern.MatchString(prefix) && ncNamePattern.MatchString(local)
}

// normalizeWhiteSpace applies the whiteSpace facet value to v
func normalizeWhiteSpace(v, mode string) string {
	switch mode {
	case replaceSpace:
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, v)
	case collapseSpace:
		return strings.Join(strings.Fields(v), " ")
	}
	return v
}
