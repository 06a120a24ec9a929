package vault

import "github.com/illarion/ksv/internal/keygen"

var (
	lowerClass    = keygen.MustCharacterClass(keygen.Lowercase.Alphabet(), 1, 0)
	upperClass    = keygen.MustCharacterClass(keygen.Uppercase.Alphabet(), 1, 0)
	digitClass    = keygen.MustCharacterClass(keygen.Digits.Alphabet(), 1, 0)
	specialsClass = keygen.MustCharacterClass(keygen.OWASPSpecials.Alphabet(), 1, 0)

	pinSpec      = keygen.MustSpec(4, digitClass)
	longPinSpec  = keygen.MustSpec(8, digitClass)
	passwordSpec = keygen.MustSpec(16, lowerClass, upperClass, digitClass, specialsClass)
)

// Default returns a new empty vault carrying the standard template catalog
func Default() *Vault {
	v := New()
	v.ClassTemplates = []ClassTemplate{
		{Name: "lowercase-letters", Description: "At least one lowercase ASCII letter", Schema: lowerClass},
		{Name: "uppercase-letters", Description: "At least one uppercase ASCII letter", Schema: upperClass},
		{Name: "digits", Description: "At least one decimal digit", Schema: digitClass},
		{Name: "owasp-specials", Description: "At least one OWASP special character", Schema: specialsClass},
	}
	v.GeneratorTemplates = []GeneratorTemplate{
		{Name: "pin", Description: "Four digit PIN", Schema: pinSpec},
		{Name: "long-pin", Description: "Eight digit PIN", Schema: longPinSpec},
		{Name: "owasp-password", Description: "16 characters drawn from all OWASP classes", Schema: passwordSpec},
	}
	v.FieldTemplates = []FieldTemplate{
		{Name: "standard-password", Description: "Password field", Schema: Field{Name: "password", Description: "Password", Generator: passwordSpec}},
		{Name: "standard-pin", Description: "PIN field", Schema: Field{Name: "pin", Description: "PIN", Generator: pinSpec}},
	}
	return v
}
