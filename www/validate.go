package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"relaygate/protocol"
)

const maxBodySize = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields
// and trailing data, then checks dst's validate tags.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalid("request body is required")
		}
		return invalid("invalid request body: " + err.Error())
	}
	if dec.More() {
		return invalid("request body must contain a single JSON object")
	}
	return check(dst)
}

func check(v any) error {
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return invalid(describe(verrs[0]))
	}
	return err
}

// describe phrases a failed rule the way the API has always reported it.
func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " should not be empty"
	case "max":
		return fmt.Sprintf("%s must be shorter than or equal to %s characters", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return field + " should not be empty"
		}
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	case "email":
		return field + " must be an email"
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}

// --- users ---

type createUserBody struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email"`
}

func (b createUserBody) input() protocol.CreateUserInput {
	return protocol.CreateUserInput{Name: b.Name, Email: b.Email}
}

type userPatchBody struct {
	Name     *string `json:"name" validate:"omitnil,min=1,max=100"`
	Email    *string `json:"email" validate:"omitnil,email"`
	IsActive *bool   `json:"isActive"`
}

func (b userPatchBody) patch() protocol.UserPatch {
	return protocol.UserPatch(b)
}

// --- products ---

type createProductBody struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"required"`
	Price       *float64 `json:"price" validate:"required,min=0"`
	Stock       *int64   `json:"stock" validate:"required,min=0"`
}

func (b createProductBody) input() protocol.CreateProductInput {
	return protocol.CreateProductInput{
		Name:        b.Name,
		Description: b.Description,
		Price:       *b.Price,
		Stock:       *b.Stock,
	}
}

// productPatchBody accepts an empty description, only the name must be
// non-empty when present.
type productPatchBody struct {
	Name        *string  `json:"name" validate:"omitnil,min=1,max=100"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price" validate:"omitnil,min=0"`
	Stock       *int64   `json:"stock" validate:"omitnil,min=0"`
}

func (b productPatchBody) patch() protocol.ProductPatch {
	return protocol.ProductPatch(b)
}

type stockBody struct {
	Stock *int64 `json:"stock" validate:"required,min=0"`
}

func (b stockBody) patch() protocol.StockPatch {
	return protocol.StockPatch{Stock: *b.Stock}
}
