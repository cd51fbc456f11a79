package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	MsgUnreachable    = "Impossible de se connecter au serveur. Veuillez vérifier votre connexion internet."
	MsgGeneric        = "Une erreur est survenue"
	MsgValidation     = "Erreurs de validation"
	MsgSessionExpired = "Votre session a expiré. Veuillez vous reconnecter."
)

// ErrUnauthorized is returned after a 401 has cleared the token slot.
var ErrUnauthorized = errors.New("session expired")

// APIError is an error status (or success:false envelope) reported by the API.
type APIError struct {
	Status  int
	Message string
	// Fields maps a form field to its validation message.
	Fields map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

// FieldMessages returns the field-level messages ordered by field name.
func (e *APIError) FieldMessages() []string {
	if len(e.Fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.Fields[k])
	}
	return out
}

// TransportError means no response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return MsgUnreachable
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message maps any error to the string shown next to the form or panel.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Error()
	}
	if errors.Is(err, ErrUnauthorized) {
		return MsgSessionExpired
	}
	return err.Error()
}

// FieldMessages returns the validation list carried by err, if any.
func FieldMessages(err error) []string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.FieldMessages()
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:  status,
		Message: firstString(body, "message", "error.message", "error", "msg"),
		Fields:  fieldErrors(body),
	}
	if apiErr.Message == "" {
		if len(apiErr.Fields) > 0 {
			apiErr.Message = MsgValidation
		} else {
			apiErr.Message = MsgGeneric
		}
	}
	return apiErr
}

// envelopeFailure turns a 2xx {"success":false,...} body into an APIError.
func envelopeFailure(status int, body []byte) *APIError {
	success := gjson.GetBytes(body, "success")
	if !success.Exists() || success.Type != gjson.False {
		return nil
	}
	return parseError(status, body)
}

func firstString(body []byte, paths ...string) string {
	for _, path := range paths {
		res := gjson.GetBytes(body, path)
		if res.Type == gjson.String {
			if msg := strings.TrimSpace(res.String()); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// fieldErrors understands the validation shapes the API produces:
// {"errors":{"email":"..."}}, {"errors":[{"path":"email","msg":"..."}]}
// and {"error":{"name":"ValidationError","errors":{"email":{"message":"..."}}}}.
func fieldErrors(body []byte) map[string]string {
	out := map[string]string{}
	collect := func(key string, v gjson.Result) {
		msg := v.String()
		if v.IsObject() {
			msg = firstNonEmpty(v.Get("message").String(), v.Get("msg").String())
		}
		msg = strings.TrimSpace(msg)
		if key == "" || msg == "" {
			return
		}
		out[key] = msg
	}

	errs := gjson.GetBytes(body, "errors")
	switch {
	case errs.IsObject():
		errs.ForEach(func(k, v gjson.Result) bool {
			collect(k.String(), v)
			return true
		})
	case errs.IsArray():
		for i, v := range errs.Array() {
			key := firstNonEmpty(v.Get("path").String(), v.Get("param").String(), v.Get("field").String())
			if key == "" {
				key = fmt.Sprintf("_%03d", i)
			}
			collect(key, v)
		}
	}
	if nested := gjson.GetBytes(body, "error.errors"); nested.IsObject() {
		nested.ForEach(func(k, v gjson.Result) bool {
			collect(k.String(), v)
			return true
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
