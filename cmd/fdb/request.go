package main

import (
	"strings"

	"github.com/ecmwf-go/fdb/pkg/schema"
)

// parseRequest parses MARS-style request arguments of the form
// "keyword=value" or "keyword=value1/value2/value3" into a
// schema.Request, as accepted by every CLI tool per spec §6.
func parseRequest(args []string) schema.Request {
	req := schema.Request{}
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 {
			continue
		}
		kw := strings.TrimSpace(kv[0])
		vals := strings.Split(kv[1], "/")
		for i, v := range vals {
			vals[i] = strings.TrimSpace(v)
		}
		req[kw] = vals
	}
	return req
}
