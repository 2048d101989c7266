package domain

// Endpoint is a registry entry describing one public API route. The admin
// panel owns the lifecycle of these rows; the telemetry core only reads the
// Enabled and VisibleInStats flags.
type Endpoint struct {
	ID              string
	Name            string
	Method          string
	Route           string
	ResponseType    string
	PartDescription string
	Description     string
	Params          []byte
	SampleRequest   []byte
	SampleResponse  []byte
	Enabled         bool
	VisibleInStats  bool
}
