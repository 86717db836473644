package server

// SetJSONMarshalFunc replaces the JSON encoder used for error bodies and
// returns a function restoring the previous one.
func SetJSONMarshalFunc(f func(v interface{}) ([]byte, error)) (restore func()) {
	prev := jsonMarshalFunc
	jsonMarshalFunc = f
	return func() { jsonMarshalFunc = prev }
}
