package model

import (
	"fmt"
	"strconv"

	"github.com/robertof/go-proximity-scanner/device"
)

type Outcome uint8

const (
  OutcomeSuccess Outcome = iota
  OutcomeServiceNotFound
  OutcomeTimeout
  OutcomeTransportError
  OutcomeDecodeFailed
)

func (o Outcome) String() string {
  switch o {
  case OutcomeSuccess:
    return "success"
  case OutcomeServiceNotFound:
    return "service-not-found"
  case OutcomeTimeout:
    return "timeout"
  case OutcomeTransportError:
    return "transport-error"
  case OutcomeDecodeFailed:
    return "decode-failed"
  default:
    panic("unknown outcome value: " + strconv.Itoa(int(o)))
  }
}

// Stage is the session step a timeout or fault happened in.
type Stage string

const (
  StageNone Stage = ""
  StageConnect Stage = "connect"
  StageLinkUp Stage = "link-up"
  StageServicesResolved Stage = "services-resolved"
  StageRead Stage = "read"
  StageDecode Stage = "decode"
)

// Result is the terminal outcome of one session.
type Result struct {
  Outcome
  Stage Stage
  Record device.ProximityRecord
  Error error
}

func Success(r device.ProximityRecord) Result {
  return Result{Outcome: OutcomeSuccess, Record: r}
}

func ServiceNotFound(err error) Result {
  return Result{Outcome: OutcomeServiceNotFound, Stage: StageRead, Error: err}
}

func Timeout(stage Stage, err error) Result {
  return Result{Outcome: OutcomeTimeout, Stage: stage, Error: err}
}

func TransportError(stage Stage, err error) Result {
  return Result{Outcome: OutcomeTransportError, Stage: stage, Error: err}
}

func DecodeFailed(err error) Result {
  return Result{Outcome: OutcomeDecodeFailed, Stage: StageDecode, Error: err}
}

func (r Result) String() string {
  switch r.Outcome {
  case OutcomeSuccess:
    return fmt.Sprintf("result:success(%v)", r.Record)
  case OutcomeServiceNotFound:
    return fmt.Sprintf("result:service-not-found(%v)", r.Error)
  default:
    return fmt.Sprintf("result:%v[%v](%v)", r.Outcome, r.Stage, r.Error)
  }
}

// SessionResult ties a result to the device it was produced for.
type SessionResult struct {
	Identity device.Identity
	Result
}
