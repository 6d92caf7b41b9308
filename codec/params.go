package codec

import (
	"fmt"
	"math"

	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

const (
	// Format tags documents produced by Encode.
	Format = "modelrt.linear"

	// Version is the current document version.
	Version = 1

	// MaxTextSize bounds the parameter text accepted by Decode.
	MaxTextSize = 16 << 20
)

type document struct {
	Format       string            `json:"format"`
	Version      int               `json:"version"`
	Learner      model.Hyperparams `json:"learner"`
	NFeatures    int               `json:"n_features,omitempty"`
	NOutputs     int               `json:"n_outputs,omitempty"`
	Coef         [][]float64       `json:"coef,omitempty"`
	Intercept    []float64         `json:"intercept,omitempty"`
	NIter        int               `json:"n_iter,omitempty"`
	TrainingLoss *float64          `json:"training_loss,omitempty"`
}

// incoming is the decode-side view of a document. Coefficients are decoded
// loosely so that version-less documents, which carry a flat coef list, a
// scalar intercept and a "loss" that is either the loss name or the
// training loss, are accepted too.
type incoming struct {
	Format       *string            `json:"format"`
	Version      *int               `json:"version"`
	Learner      *model.Hyperparams `json:"learner"`
	NFeatures    *int               `json:"n_features"`
	NOutputs     *int               `json:"n_outputs"`
	Coef         any                `json:"coef"`
	Intercept    any                `json:"intercept"`
	NIter        *int               `json:"n_iter"`
	TrainingLoss *float64           `json:"training_loss"`
	Loss         any                `json:"loss"`
}

// Encode renders s as parameter text. Unfitted states produce a
// hyperparameters-only document.
func Encode(c Codec, s *model.State) ([]byte, error) {
	if c == nil {
		c = Default
	}

	doc := document{
		Format:  Format,
		Version: Version,
		Learner: s.Params,
	}
	if err := checkFiniteParams(s.Params); err != nil {
		return nil, err
	}

	if lin := s.Fitted; lin != nil {
		if err := lin.Validate(); err != nil {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidArgument).
				Detail("cannot encode model state").
				Cause(err).
				Build()
		}
		loss := lin.TrainingLoss
		doc.NFeatures = lin.NFeatures()
		doc.NOutputs = lin.NOutputs()
		doc.Coef = lin.Coef
		doc.Intercept = lin.Intercept
		doc.NIter = lin.NIter
		doc.TrainingLoss = &loss
	}

	text, err := c.Marshal(&doc)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInternal, err, "marshal params")
	}
	return text, nil
}

func checkFiniteParams(h model.Hyperparams) error {
	for name, v := range map[string]float64{
		"alpha":   h.Alpha,
		"eta0":    h.Eta0,
		"power_t": h.PowerT,
		"tol":     h.Tol,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.InvalidArgument(errors.PhaseEncode, []string{"learner", name},
				fmt.Sprintf("%v cannot be encoded", v))
		}
	}
	return nil
}

// Decode parses parameter text into a fresh state. Hyperparameters missing
// from the document take their value from defaults. A document without
// coef and intercept yields an unfitted state.
func Decode(c Codec, text []byte, defaults model.Hyperparams) (*model.State, error) {
	if c == nil {
		c = Default
	}
	if len(text) == 0 {
		return nil, errors.ParseFailed("empty parameter text", nil)
	}
	if len(text) > MaxTextSize {
		return nil, errors.ParseFailed(fmt.Sprintf("parameter text is %d bytes, limit is %d", len(text), MaxTextSize), nil)
	}

	params := defaults
	in := incoming{Learner: &params}
	if err := c.Unmarshal(text, &in); err != nil {
		return nil, errors.ParseFailed("malformed parameter text", err)
	}

	legacy := in.Format == nil && in.Version == nil
	if !legacy {
		if err := checkHeader(in); err != nil {
			return nil, err
		}
	} else if name, ok := in.Loss.(string); ok {
		params.Loss = legacyLoss(name)
	}

	if err := params.Validate(); err != nil {
		return nil, errors.ParseFailed("invalid learner hyperparameters", err)
	}

	state := &model.State{Params: params}
	if in.Coef == nil && in.Intercept == nil {
		return state, nil
	}
	if in.Coef == nil || in.Intercept == nil {
		return nil, errors.ParseFailed("coef and intercept must be given together", nil)
	}

	lin, err := decodeLinear(in, legacy)
	if err != nil {
		return nil, err
	}
	state.Fitted = lin
	return state, nil
}

func checkHeader(in incoming) error {
	if in.Format == nil {
		return errors.ParseFailed("missing format", nil)
	}
	if *in.Format != Format {
		return errors.ParseFailed(fmt.Sprintf("unknown format %q", *in.Format), nil)
	}
	if in.Version == nil {
		return errors.ParseFailed("missing version", nil)
	}
	if *in.Version != Version {
		return errors.ParseFailed(fmt.Sprintf("unsupported version %d", *in.Version), nil)
	}
	return nil
}

func legacyLoss(name string) string {
	if name == "squared_loss" {
		return model.LossSquaredError
	}
	return name
}

func decodeLinear(in incoming, legacy bool) (*model.Linear, error) {
	coef, err := toMatrix(in.Coef, legacy)
	if err != nil {
		return nil, errors.ParseFailed("coef: "+err.Error(), nil)
	}
	intercept, err := toVector(in.Intercept, legacy)
	if err != nil {
		return nil, errors.ParseFailed("intercept: "+err.Error(), nil)
	}

	lin := &model.Linear{Coef: coef, Intercept: intercept}
	if in.NIter != nil {
		lin.NIter = *in.NIter
	}
	if in.TrainingLoss != nil {
		lin.TrainingLoss = *in.TrainingLoss
	} else if v, ok := in.Loss.(float64); ok && legacy {
		lin.TrainingLoss = v
	}
	if err := lin.Validate(); err != nil {
		return nil, errors.ParseFailed("inconsistent coefficients", err)
	}

	if in.NFeatures != nil && *in.NFeatures != lin.NFeatures() {
		return nil, errors.ParseFailed(fmt.Sprintf("n_features is %d, coef has %d columns", *in.NFeatures, lin.NFeatures()), nil)
	}
	if in.NOutputs != nil && *in.NOutputs != lin.NOutputs() {
		return nil, errors.ParseFailed(fmt.Sprintf("n_outputs is %d, intercept has %d entries", *in.NOutputs, lin.NOutputs()), nil)
	}
	if lin.NIter < 0 {
		return nil, errors.ParseFailed(fmt.Sprintf("n_iter is negative (%d)", lin.NIter), nil)
	}
	return lin, nil
}

// toMatrix converts a decoded coef value. Version-less documents may carry a
// flat list, read as a single output row.
func toMatrix(v any, legacy bool) ([][]float64, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty")
	}

	if _, flat := rows[0].(float64); flat {
		if !legacy {
			return nil, fmt.Errorf("expected an array of rows")
		}
		row, err := toVector(rows, false)
		if err != nil {
			return nil, err
		}
		return [][]float64{row}, nil
	}

	out := make([][]float64, len(rows))
	for i, r := range rows {
		row, err := toVector(r, false)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

// toVector converts a decoded array of numbers. Version-less documents may
// carry a bare number.
func toVector(v any, legacy bool) ([]float64, error) {
	if f, ok := v.(float64); ok && legacy {
		return []float64{f}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of numbers, got %T", v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a number", i, item)
		}
		out[i] = f
	}
	return out, nil
}
