package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"keyvault-glow/internal/model"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and reports the first failing field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewFieldError(fe.Field(), validationMessage(fe))
	}
	return model.NewDomainError(model.ErrCodeValidation, err.Error())
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "gt":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validCPF checks the two CPF verification digits.
func validCPF(raw string) bool {
	digits := digitsOnly(raw)
	if len(digits) != 11 {
		return false
	}
	if strings.Count(digits, digits[:1]) == 11 {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if check != int(digits[n]-'0') {
			return false
		}
	}
	return true
}

// luhn validates a card number checksum.
func luhn(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validateCard checks the credit-card fields before the gateway is called.
func validateCard(card *model.CardData, cpf string, now time.Time) error {
	if card == nil {
		return model.NewFieldError("card", "card data is required for credit card payments")
	}
	number := digitsOnly(card.Number)
	if number == "" {
		return model.NewFieldError("card.number", "card number is required")
	}
	if len(number) < 13 || len(number) > 19 || !luhn(number) {
		return model.NewFieldError("card.number", "card number is invalid")
	}
	if strings.TrimSpace(card.HolderName) == "" {
		return model.NewFieldError("card.holderName", "card holder name is required")
	}
	cvv := digitsOnly(card.CVV)
	if cvv == "" {
		return model.NewFieldError("card.cvv", "CVV is required")
	}
	if len(cvv) < 3 || len(cvv) > 4 || len(cvv) != len(card.CVV) {
		return model.NewFieldError("card.cvv", "CVV is invalid")
	}
	if card.ExpMonth < 1 || card.ExpMonth > 12 {
		return model.NewFieldError("card.expMonth", "expiry month is invalid")
	}
	if card.ExpYear < now.Year() || (card.ExpYear == now.Year() && card.ExpMonth < int(now.Month())) {
		return model.NewFieldError("card.expYear", "card is expired")
	}
	if strings.TrimSpace(cpf) == "" {
		return model.NewFieldError("cpf", "CPF is required for credit card payments")
	}
	return nil
}

// validatePixKey checks a payout key against its declared type.
func validatePixKey(key string, keyType model.PixKeyType) error {
	if !keyType.IsValid() {
		return model.NewFieldError("pixKeyType", fmt.Sprintf("unknown PIX key type %q", keyType))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return model.NewFieldError("pixKey", "PIX key is required")
	}

	valid := true
	switch keyType {
	case model.PixKeyTypeCPF:
		valid = validCPF(key)
	case model.PixKeyTypeCNPJ:
		valid = len(digitsOnly(key)) == 14
	case model.PixKeyTypeEmail:
		valid = validate.Var(key, "email") == nil
	case model.PixKeyTypePhone:
		digits := digitsOnly(key)
		valid = len(digits) >= 10 && len(digits) <= 13
	case model.PixKeyTypeRandom:
		valid = validate.Var(key, "uuid") == nil
	}
	if !valid {
		return model.NewFieldError("pixKey", fmt.Sprintf("PIX key is not a valid %s key", keyType))
	}
	return nil
}
