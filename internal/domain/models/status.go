package models

import "fmt"

// Status is the reconciliation state of a MatchResult.
type Status int

const (
	StatusUnidentified Status = iota
	StatusIdentified
	StatusPending
	StatusDivergent
)

var statusCodes = map[Status]string{
	StatusUnidentified: "unidentified",
	StatusIdentified:   "identified",
	StatusPending:      "pending",
	StatusDivergent:    "divergent",
}

// String returns the stable machine code of the status.
func (s Status) String() string {
	if code, ok := statusCodes[s]; ok {
		return code
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Label returns the localized presentation label.
func (s Status) Label() string {
	switch s {
	case StatusIdentified:
		return "IDENTIFICADO"
	case StatusUnidentified:
		return "NÃO IDENTIFICADO"
	case StatusPending:
		return "PENDENTE"
	case StatusDivergent:
		return "DIVERGENTE"
	default:
		return s.String()
	}
}

// MarshalText encodes the status as its machine code.
func (s Status) MarshalText() ([]byte, error) {
	code, ok := statusCodes[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(code), nil
}

// UnmarshalText decodes a machine code.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a machine code into a Status.
func ParseStatus(code string) (Status, error) {
	for status, c := range statusCodes {
		if c == code {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", code)
}

// MatchMethod records how a result was reached.
type MatchMethod int

const (
	MethodAutomatic MatchMethod = iota
	MethodManual
	MethodLearned
	MethodAI
)

var methodCodes = map[MatchMethod]string{
	MethodAutomatic: "AUTOMATIC",
	MethodManual:    "MANUAL",
	MethodLearned:   "LEARNED",
	MethodAI:        "AI",
}

func (m MatchMethod) String() string {
	if code, ok := methodCodes[m]; ok {
		return code
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// MarshalText encodes the method as its code.
func (m MatchMethod) MarshalText() ([]byte, error) {
	code, ok := methodCodes[m]
	if !ok {
		return nil, fmt.Errorf("unknown match method %d", int(m))
	}
	return []byte(code), nil
}

// UnmarshalText decodes a method code.
func (m *MatchMethod) UnmarshalText(text []byte) error {
	for method, code := range methodCodes {
		if code == string(text) {
			*m = method
			return nil
		}
	}
	return fmt.Errorf("unknown match method %q", string(text))
}
