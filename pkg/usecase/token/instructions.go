package token

import (
	"fmt"

	"github.com/integrasalud/integrasalud/pkg/model"
)

const instructionsFormat = `Tu código de turno anónimo es: %s

Próximos pasos:
1. Guarda este código (anótalo o sácale una captura).
2. Dirígete a %s.
3. Presenta este código en recepción para tu turno de %s.

No se te pedirá ningún dato personal hasta que llegues al centro de salud.`

// Instructions renders what the user has to do with an issued code
func Instructions(tk *model.Token) string {
	return fmt.Sprintf(instructionsFormat, tk.Code, tk.Facility, tk.Specialty)
}
