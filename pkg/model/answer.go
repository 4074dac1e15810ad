package model

type Provenance string

const (
	ProvenanceOffline           Provenance = "offline"
	ProvenanceOnline            Provenance = "online"
	ProvenanceAppointmentIntent Provenance = "appointment-intent"
	ProvenanceError             Provenance = "error"
)

// Answer is the resolver's reply. Text is empty for appointment intent.
type Answer struct {
	Text       string     `json:"text,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// HasText reports whether the answer carries displayable text
func (a *Answer) HasText() bool {
	return a.Provenance != ProvenanceAppointmentIntent
}

// Label is the heading shown above an answer
func (p Provenance) Label() string {
	switch p {
	case ProvenanceOffline:
		return "✔️ Respuesta Rápida (Offline)"
	case ProvenanceOnline:
		return "🌐 Respuesta Detallada (Online)"
	case ProvenanceAppointmentIntent:
		return "🗓️ Generador de Turno Anónimo"
	default:
		return "Hubo un problema"
	}
}
