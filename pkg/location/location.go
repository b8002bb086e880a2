// Package location implements FieldLocation: a polymorphic, serializable
// reference to a payload byte range, selected by URI scheme on decode.
// See spec.md §3 and §4.3.
package location

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme identifies the backend that owns a location's URI.
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeFAM   Scheme = "fam"
	SchemeRADOS Scheme = "rados"
	SchemeS3    Scheme = "s3"
)

// FieldLocation is an immutable reference to `[offset, offset+length)`
// of the object identified by URI. RemapKey lets a location be viewed
// under a renamed db/index key (overlay/mount) without rewriting the
// underlying reference.
type FieldLocation struct {
	URI      string
	Offset   int64
	Length   int64
	RemapKey map[string]string
}

// New constructs a FieldLocation with no remap.
func New(uri string, offset, length int64) FieldLocation {
	return FieldLocation{URI: uri, Offset: offset, Length: length}
}

// WithRemap returns a copy of l carrying remap as its RemapKey, leaving
// the underlying URI/offset/length untouched (per spec: "never rewrite
// the on-disk location").
func (l FieldLocation) WithRemap(remap map[string]string) FieldLocation {
	cp := l
	cp.RemapKey = make(map[string]string, len(remap))
	for k, v := range remap {
		cp.RemapKey[k] = v
	}
	return cp
}

// Scheme parses the URI scheme, used to select the decoding backend.
func (l FieldLocation) Scheme() (Scheme, error) {
	u, err := url.Parse(l.URI)
	if err != nil {
		return "", fmt.Errorf("location: invalid uri %q: %w", l.URI, err)
	}
	switch Scheme(u.Scheme) {
	case SchemeFile, SchemeFAM, SchemeRADOS, SchemeS3:
		return Scheme(u.Scheme), nil
	default:
		return "", fmt.Errorf("location: unknown scheme %q", u.Scheme)
	}
}

// Encode serializes l to its canonical string form:
// "<uri>#<offset>,<length>[;remapkw=val,...]". Object-store URIs already
// use '#' for their own fragment per spec §6 ("fam://.../#offset,length");
// file URIs gain the fragment here.
func Encode(l FieldLocation) string {
	var b strings.Builder
	b.WriteString(l.URI)
	b.WriteByte('#')
	b.WriteString(strconv.FormatInt(l.Offset, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(l.Length, 10))
	if len(l.RemapKey) > 0 {
		b.WriteByte(';')
		first := true
		for _, k := range sortedKeys(l.RemapKey) {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(l.RemapKey[k])
		}
	}
	return b.String()
}

// Decode parses the string form produced by Encode back into a
// FieldLocation. decode(encode(x)) == x holds for all x.
func Decode(s string) (FieldLocation, error) {
	uriPart := s
	rest := ""
	if idx := strings.LastIndexByte(s, '#'); idx >= 0 {
		uriPart = s[:idx]
		rest = s[idx+1:]
	}
	if rest == "" {
		return FieldLocation{}, fmt.Errorf("location: malformed encoding %q: missing offset/length", s)
	}

	remapPart := ""
	offsetLength := rest
	if idx := strings.IndexByte(rest, ';'); idx >= 0 {
		offsetLength = rest[:idx]
		remapPart = rest[idx+1:]
	}

	parts := strings.SplitN(offsetLength, ",", 2)
	if len(parts) != 2 {
		return FieldLocation{}, fmt.Errorf("location: malformed offset/length in %q", s)
	}
	offset, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return FieldLocation{}, fmt.Errorf("location: bad offset: %w", err)
	}
	length, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return FieldLocation{}, fmt.Errorf("location: bad length: %w", err)
	}

	loc := FieldLocation{URI: uriPart, Offset: offset, Length: length}
	if remapPart != "" {
		loc.RemapKey = make(map[string]string)
		for _, kv := range strings.Split(remapPart, ",") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			loc.RemapKey[parts[0]] = parts[1]
		}
	}
	return loc, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
