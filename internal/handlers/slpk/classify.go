package slpk

import "strings"

// Kind is the payload class of a scene layer resource, chosen by file suffix.
type Kind int

const (
	KindUnclassified Kind = iota
	KindGzipJSON
	KindGzip
	KindJSON
	KindBinary
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
	encodingGzip      = "gzip"
)

// kindRules is checked in order; the first matching suffix wins, so
// ".json.gz" must precede ".gz".
var kindRules = []struct {
	suffix string
	kind   Kind
}{
	{".json.gz", KindGzipJSON},
	{".gz", KindGzip},
	{".json", KindJSON},
	{".bin", KindBinary},
}

// Classify returns the kind of the file at path. Suffixes compare case-insensitively.
func Classify(path string) Kind {
	lower := strings.ToLower(path)
	for _, rule := range kindRules {
		if strings.HasSuffix(lower, rule.suffix) {
			return rule.kind
		}
	}
	return KindUnclassified
}

// ContentType is the Content-Type sent for the kind, or "" for none.
func (k Kind) ContentType() string {
	switch k {
	case KindGzipJSON, KindJSON:
		return contentTypeJSON
	case KindGzip, KindBinary:
		return contentTypeBinary
	}
	return ""
}

// ContentEncoding is the Content-Encoding sent for the kind, or "" for none.
func (k Kind) ContentEncoding() string {
	if k == KindGzipJSON || k == KindGzip {
		return encodingGzip
	}
	return ""
}

func (k Kind) String() string {
	switch k {
	case KindGzipJSON:
		return "json+gzip"
	case KindGzip:
		return "gzip"
	case KindJSON:
		return "json"
	case KindBinary:
		return "binary"
	}
	return "unclassified"
}
