package staff

import (
	"github.com/google/uuid"
)

// Profession identifies a practitioner role offered for telehealth.
type Profession string

const (
	ProfessionMedicalDoctor Profession = "medical_doctor"
	ProfessionTherapist     Profession = "therapist"
	ProfessionNutritionist  Profession = "nutritionist"
	ProfessionTrainer       Profession = "trainer"
)

// regulated professions require a licensed-state credential matching the
// client's location before they can be offered in search results.
var regulated = map[Profession]bool{
	ProfessionMedicalDoctor: true,
	ProfessionTherapist:     true,
}

// Regulated reports whether the profession requires state licensure.
func (p Profession) Regulated() bool {
	return regulated[p]
}

// Valid reports whether the profession is a known value.
func (p Profession) Valid() bool {
	switch p {
	case ProfessionMedicalDoctor, ProfessionTherapist, ProfessionNutritionist, ProfessionTrainer:
		return true
	}
	return false
}

// Sex is the practitioner attribute matched against a client gender preference.
type Sex string

const (
	SexFemale Sex = "f"
	SexMale   Sex = "m"
)

// Valid reports whether the sex is a known value.
func (s Sex) Valid() bool {
	return s == SexFemale || s == SexMale
}

// Profile holds the practitioner attributes the search engine filters on.
type Profile struct {
	UserID          uuid.UUID
	Profession      Profession
	Sex             Sex
	HourlyRateCents int32
	LicensedStates  []string
}

// Settings is the per-practitioner telehealth configuration.
type Settings struct {
	UserID      uuid.UUID
	AutoConfirm bool
	Timezone    string
}
