package app

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ChangeType is the direction of a salary adjustment.
type ChangeType string

const (
	Increase ChangeType = "increase"
	Decrease ChangeType = "decrease"
)

// SetSalaryInput replaces the base salary of the active cycle.
// ActorID is the acting admin and is only used for attribution.
type SetSalaryInput struct {
	Amount  decimal.Decimal `json:"amount" validate:"nonnegative,money_scale"`
	Note    string          `json:"note" validate:"max=500"`
	ActorID int64           `json:"actorId"`
}

type AdjustSalaryInput struct {
	Amount     decimal.Decimal `json:"amount" validate:"positive,money_scale"`
	ChangeType ChangeType      `json:"changeType" validate:"required,oneof=increase decrease"`
	Note       string          `json:"note" validate:"max=500"`
	ActorID    int64           `json:"actorId"`
}

// GiveAdvanceInput describes a cash advance. A zero Date means "now";
// ApprovedBy is the acting admin.
type GiveAdvanceInput struct {
	Amount     decimal.Decimal `json:"amount" validate:"positive,money_scale"`
	Note       string          `json:"note" validate:"max=500"`
	Date       time.Time       `json:"date"`
	ApprovedBy int64           `json:"approvedBy"`
}

type RegisterDriverInput struct {
	Name             string    `json:"name" validate:"required,max=120"`
	TelegramID       int64     `json:"telegramId" validate:"gte=0"`
	RegistrationDate time.Time `json:"registrationDate"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// decimals reach the validators as their exact string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	mustRegister(v, "positive", decimalRule(func(d decimal.Decimal) bool { return d.Sign() > 0 }))
	mustRegister(v, "nonnegative", decimalRule(func(d decimal.Decimal) bool { return d.Sign() >= 0 }))
	mustRegister(v, "money_scale", decimalRule(driver.FitsScale))
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func decimalRule(ok func(decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ok(d)
	}
}

// validateInput checks a command payload and converts rule failures into a
// *ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
