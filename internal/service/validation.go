package service

import (
	"fmt"
	"net"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries one message per offending field, keyed by the JSON field name
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

const (
	msgRequired = "This field is required."
	msgBlank    = "This field may not be blank."
	msgURL      = "Enter a valid URL."
)

var webURLSchemes = map[string]bool{"http": true, "https": true, "ftp": true, "ftps": true}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("weburl", validateWebURL); err != nil {
		panic(fmt.Sprintf("register weburl validation: %v", err))
	}

	return v
}

// validateWebURL accepts absolute http, https, ftp and ftps URLs whose host is
// localhost, an IP address or a domain name with an alphabetic top-level label
func validateWebURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if strings.ContainsAny(raw, " \t\r\n") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil || !webURLSchemes[strings.ToLower(u.Scheme)] {
		return false
	}

	return validHost(u.Hostname())
}

func validHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") || net.ParseIP(host) != nil {
		return true
	}

	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}

	tld := strings.ToLower(labels[len(labels)-1])
	if strings.HasPrefix(tld, "xn--") {
		return len(tld) > 4
	}
	if utf8.RuneCountInString(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}

// fieldMessages converts validator errors into the field -> message map
func fieldMessages(err error) map[string]string {
	out := map[string]string{}

	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		out["non_field_errors"] = err.Error()
		return out
	}

	for _, fe := range ve {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgBlank
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "weburl":
		return msgURL
	default:
		return fmt.Sprintf("Failed validation (%s).", fe.Tag())
	}
}
