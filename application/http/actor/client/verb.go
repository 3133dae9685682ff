package client

type Verb int

const (
	MethodGet Verb = iota
	MethodPost
	MethodPut
	MethodDelete
)

var verbNames = [...]string{
	MethodGet:    "GET",
	MethodPost:   "POST",
	MethodPut:    "PUT",
	MethodDelete: "DELETE",
}

func (v Verb) String() string {
	if v < 0 || int(v) >= len(verbNames) {
		return "UNKNOWN"
	}
	return verbNames[v]
}

// VerbFromIndex maps 0..3 to GET, POST, PUT and DELETE.
func VerbFromIndex(index int) (Verb, bool) {
	if index < 0 || index >= len(verbNames) {
		return 0, false
	}
	return Verb(index), true
}
