package daemon

import "encoding/gob"

// gob requires every concrete type that will ever be assigned to an
// interface{} field to be registered up front. Envelope.Args/Result values
// are a free-form map[string]interface{}; these are the concrete shapes
// workers actually put there (strings, numbers, bools, nested slices and
// maps, and string-keyed slices of maps for list results like symbols).
func init() {
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]string{})
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
	gob.Register([]map[string]interface{}{})
}
