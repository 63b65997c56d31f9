package covidsafe

import (
  "encoding/json"
  "fmt"
  "unicode/utf8"

  "github.com/pkg/errors"
  "github.com/robertof/go-proximity-scanner/device"
)

const (
  FieldOrg = "org"
  FieldVersion = "v"
  FieldModel = "modelP"
  FieldMessage = "msg"
)

// DecodeError is returned for payloads that can't be turned into a record. Field is empty when
// the payload as a whole is malformed.
type DecodeError struct {
  Field string
  err error
}

func (e *DecodeError) Error() string {
  if e.Field == "" {
    return "covidsafe: " + e.err.Error()
  }

  return fmt.Sprintf("covidsafe: field %q: %v", e.Field, e.err)
}

func (e *DecodeError) Unwrap() error {
  return e.err
}

func fieldError(field string, format string, args ...any) *DecodeError {
  return &DecodeError{
    Field: field,
    err: errors.Wrapf(device.ErrInvalidData, format, args...),
  }
}

type payload struct {
  Org *string `json:"org"`
  Version *int `json:"v"`
  Model *string `json:"modelP"`
  Message *string `json:"msg"`
}

// Decode parses the JSON object read from the characteristic. The version is passed through
// as-is, it doesn't change how the payload is decoded.
func Decode(raw []byte) (record device.ProximityRecord, err error) {
  if !utf8.Valid(raw) {
    return record, &DecodeError{err: errors.Wrap(device.ErrInvalidData, "payload is not valid UTF-8")}
  }

  var p payload

  if err := json.Unmarshal(raw, &p); err != nil {
    var typeErr *json.UnmarshalTypeError

    if errors.As(err, &typeErr) && typeErr.Field != "" {
      return record, fieldError(typeErr.Field, "unexpected %s", typeErr.Value)
    }

    return record, &DecodeError{err: errors.Wrapf(device.ErrInvalidData, "malformed payload: %v", err)}
  }

  switch {
  case p.Org == nil:
    return record, fieldError(FieldOrg, "missing")
  case p.Version == nil:
    return record, fieldError(FieldVersion, "missing")
  case p.Model == nil:
    return record, fieldError(FieldModel, "missing")
  case p.Message == nil:
    return record, fieldError(FieldMessage, "missing")
  }

  record.Org = *p.Org
  record.Version = *p.Version
  record.Model = *p.Model
  record.Message = *p.Message

  return record, nil
}
