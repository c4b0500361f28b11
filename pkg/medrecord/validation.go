package medrecord

import (
	"fmt"
	"strings"
)

// Allowed enum values for payload fields. Validation rejects anything
// outside these sets; an empty optional field passes.
var (
	allowedGenders = map[string]struct{}{
		"male":    {},
		"female":  {},
		"unknown": {},
	}
	allowedAnnotationKinds = map[string]struct{}{
		"wound":      {},
		"burn":       {},
		"tourniquet": {},
		"injection":  {},
		"marker":     {},
	}
)

// validatePayload enforces the generic payload rules before any
// persistence. Domain-specific rules live in the FieldValidator
// collaborator and run after this gate. Either all rules pass or a
// ValidationError is returned and nothing is applied.
func validatePayload(p Payload) error {
	if strings.TrimSpace(p.Identity.Name) == "" {
		return &ValidationError{Field: "identity.name", Reason: "name is required"}
	}
	if strings.TrimSpace(p.Identity.Unit) == "" {
		return &ValidationError{Field: "identity.unit", Reason: "unit is required"}
	}
	if strings.TrimSpace(p.Medical.Diagnosis) == "" {
		return &ValidationError{Field: "medical.diagnosis", Reason: "diagnosis is required"}
	}

	if p.Identity.Gender != "" {
		if _, ok := allowedGenders[p.Identity.Gender]; !ok {
			return &ValidationError{
				Field:  "identity.gender",
				Reason: fmt.Sprintf("%q is not an allowed gender", p.Identity.Gender),
			}
		}
	}

	for i, f := range p.Flags {
		if f.Set && strings.TrimSpace(f.Detail) == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("flags[%d].detail", i),
				Reason: fmt.Sprintf("detail is required when flag %q is set", f.Name),
			}
		}
	}

	for i, a := range p.Annotations {
		if _, ok := allowedAnnotationKinds[a.Kind]; !ok {
			return &ValidationError{
				Field:  fmt.Sprintf("annotations[%d].kind", i),
				Reason: fmt.Sprintf("%q is not an allowed annotation kind", a.Kind),
			}
		}
		if a.X < 0 || a.X > 1 || a.Y < 0 || a.Y > 1 {
			return &ValidationError{
				Field:  fmt.Sprintf("annotations[%d]", i),
				Reason: fmt.Sprintf("coordinates (%g, %g) are outside the unit square", a.X, a.Y),
			}
		}
	}

	return nil
}

// mergePayload lays the incoming payload over the current one. Sections
// are replaced wholesale when the incoming section is non-zero; Extra is
// merged key-wise with incoming values winning.
func mergePayload(current, incoming Payload) Payload {
	merged := current

	if incoming.Identity != (IdentitySection{}) {
		merged.Identity = incoming.Identity
	}
	if incoming.Medical != (MedicalSection{}) {
		merged.Medical = incoming.Medical
	}
	if incoming.Flags != nil {
		merged.Flags = incoming.Flags
	}
	if incoming.Annotations != nil {
		merged.Annotations = incoming.Annotations
	}
	if len(incoming.Extra) > 0 {
		if merged.Extra == nil {
			merged.Extra = make(map[string]any, len(incoming.Extra))
		} else {
			extra := make(map[string]any, len(merged.Extra)+len(incoming.Extra))
			for k, v := range merged.Extra {
				extra[k] = v
			}
			merged.Extra = extra
		}
		for k, v := range incoming.Extra {
			merged.Extra[k] = v
		}
	}

	return merged
}
