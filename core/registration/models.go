package registration

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorias/core"
	"github.com/trezcool/tutorias/core/user"
)

const dateLayout = "2006-01-02"

// List is a multi-select answer. It is stored as JSON text, or NULL when empty.
type List []string

func (l List) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *List) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.Errorf("registration.List: cannot scan %T", src)
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "registration.List: decoding")
	}
	*l = items
	return nil
}

func cleanList(items []string) List {
	var l List
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = core.CleanString(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		l = append(l, item)
	}
	return l
}

// Form is a submitted registration form. UserID always references the registrant identity.
type Form struct {
	ID               int         `json:"id" db:"id"`
	UserID           int         `json:"user_id" db:"user_id"`
	Cedula           string      `json:"cedula" db:"cedula"`
	Nombre           string      `json:"nombre" db:"nombre"`
	Apellido         null.String `json:"apellido" db:"apellido"`
	Telefono         null.String `json:"telefono" db:"telefono"`
	Correo           null.String `json:"correo" db:"correo"`
	Direccion        null.String `json:"direccion" db:"direccion"`
	Provincia        null.String `json:"provincia" db:"provincia"`
	Municipio        null.String `json:"municipio" db:"municipio"`
	Sector           null.String `json:"sector" db:"sector"`
	ColegioElectoral null.String `json:"colegio_electoral" db:"colegio_electoral"`
	Ocupacion        null.String `json:"ocupacion" db:"ocupacion"`
	Genero           null.String `json:"genero" db:"genero"`
	FechaNacimiento  null.Time   `json:"fecha_nacimiento" db:"fecha_nacimiento"`
	Intereses        List        `json:"intereses" db:"intereses"`
	Habilidades      List        `json:"habilidades" db:"habilidades"`
	Disponibilidad   List        `json:"disponibilidad" db:"disponibilidad"`
	IP               null.String `json:"ip" db:"ip"`
	FechaEnvio       time.Time   `json:"fecha_envio" db:"fecha_envio"` // UTC
}

// NewForm is a registration submission.
type NewForm struct {
	Nombre           string   `json:"nombre" validate:"required"`
	Cedula           string   `json:"cedula" validate:"required,cedula"`
	Apellido         string   `json:"apellido"`
	Telefono         string   `json:"telefono"`
	Correo           string   `json:"correo" validate:"omitempty,email"`
	Direccion        string   `json:"direccion"`
	Provincia        string   `json:"provincia"`
	Municipio        string   `json:"municipio"`
	Sector           string   `json:"sector"`
	ColegioElectoral string   `json:"colegio_electoral"`
	Ocupacion        string   `json:"ocupacion"`
	Genero           string   `json:"genero"`
	FechaNacimiento  string   `json:"fecha_nacimiento" validate:"omitempty,datetime=2006-01-02"`
	Intereses        []string `json:"intereses"`
	Habilidades      []string `json:"habilidades"`
	Disponibilidad   []string `json:"disponibilidad"`

	// UserID is the pre-registered identity of the registrant, if any.
	UserID *int `json:"user_id" validate:"omitempty,min=1"`
	// RegistradoPor is the registrar of a newly created identity.
	RegistradoPor *int `json:"registrado_por" validate:"omitempty,min=1"`
}

func (nf *NewForm) Validate(validate *validator.Validate) error {
	nf.Nombre = core.CleanString(nf.Nombre)
	nf.Cedula = core.CleanCedula(nf.Cedula)
	nf.Correo = core.CleanString(nf.Correo, true /* lower */)
	nf.FechaNacimiento = core.CleanString(nf.FechaNacimiento)
	return validate.Struct(nf)
}

func optString(s string) null.String {
	s = core.CleanString(s)
	return null.NewString(s, s != "")
}

func (nf *NewForm) toForm(userID int, ip string, now time.Time) Form {
	f := Form{
		UserID:           userID,
		Cedula:           nf.Cedula,
		Nombre:           nf.Nombre,
		Apellido:         optString(nf.Apellido),
		Telefono:         optString(nf.Telefono),
		Correo:           optString(nf.Correo),
		Direccion:        optString(nf.Direccion),
		Provincia:        optString(nf.Provincia),
		Municipio:        optString(nf.Municipio),
		Sector:           optString(nf.Sector),
		ColegioElectoral: optString(nf.ColegioElectoral),
		Ocupacion:        optString(nf.Ocupacion),
		Genero:           optString(nf.Genero),
		Intereses:        cleanList(nf.Intereses),
		Habilidades:      cleanList(nf.Habilidades),
		Disponibilidad:   cleanList(nf.Disponibilidad),
		IP:               optString(ip),
		FechaEnvio:       now,
	}
	if nf.FechaNacimiento != "" {
		if t, err := time.Parse(dateLayout, nf.FechaNacimiento); err == nil {
			f.FechaNacimiento = null.TimeFrom(t)
		}
	}
	return f
}

// fullName is the display name given to an identity created from the form.
func (nf *NewForm) fullName() string {
	if a := core.CleanString(nf.Apellido); a != "" {
		return nf.Nombre + " " + a
	}
	return nf.Nombre
}

// Result is the outcome of a successful submission.
type Result struct {
	FormID    int  `json:"formId"`
	UserID    int  `json:"userId"`
	IsNewUser bool `json:"isNewUser"`
}

// Node is a registrant in the registration forest along with the forms it submitted
// and the identities it registered.
type Node struct {
	User        user.User `json:"user"`
	Formularios []Form    `json:"formularios"`
	Registrados []*Node   `json:"registrados"`
}
