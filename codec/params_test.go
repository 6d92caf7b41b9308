package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

var codecs = []Codec{GoJSON{}, JSON{}}

func fittedState() *model.State {
	return &model.State{
		Params: model.DefaultHyperparams(),
		Fitted: &model.Linear{
			Coef:         [][]float64{{2.000000000000001, -0.1}, {0.3333333333333333, 1e-300}},
			Intercept:    []float64{1, -7.25},
			NIter:        37,
			TrainingLoss: 0.0004,
		},
	}
}

func predict(t *testing.T, s *model.State, x array.View) []float64 {
	t.Helper()
	out := array.Zeros(x.Rows(), s.Fitted.NOutputs())
	s.Fitted.Predict(out, x)
	return out.Data()
}

func TestRoundTrip(t *testing.T) {
	x, err := array.New([]float64{0.5, -1, 3, 4, 1e6, -1e-6}, 3, 2)
	require.NoError(t, err)

	for _, c := range codecs {
		t.Run(c.Name(), func(t *testing.T) {
			orig := fittedState()
			text, err := Encode(c, orig)
			require.NoError(t, err)

			decoded, err := Decode(c, text, model.DefaultHyperparams())
			require.NoError(t, err)
			require.NotNil(t, decoded.Fitted)

			assert.Equal(t, predict(t, orig, x), predict(t, decoded, x))
			assert.Equal(t, orig.Fitted, decoded.Fitted)
			assert.Equal(t, orig.Params, decoded.Params)

			again, err := Encode(c, decoded)
			require.NoError(t, err)
			assert.Equal(t, string(text), string(again))
		})
	}
}

func TestEncode_Header(t *testing.T) {
	text, err := Encode(nil, fittedState())
	require.NoError(t, err)

	s := string(text)
	assert.True(t, strings.HasPrefix(s, `{"format":"modelrt.linear","version":1,`), s)
	assert.Contains(t, s, `"n_features":2`)
	assert.Contains(t, s, `"n_outputs":2`)
	assert.Contains(t, s, `"training_loss":0.0004`)
}

func TestEncode_Unfitted(t *testing.T) {
	p := model.DefaultHyperparams()
	p.Alpha = 0.5
	text, err := Encode(nil, &model.State{Params: p})
	require.NoError(t, err)
	assert.NotContains(t, string(text), "coef")

	decoded, err := Decode(nil, text, model.DefaultHyperparams())
	require.NoError(t, err)
	assert.Nil(t, decoded.Fitted)
	assert.Equal(t, 0.5, decoded.Params.Alpha)
}

func TestEncode_RefusesNonFinite(t *testing.T) {
	s := fittedState()
	s.Params.Tol = 0
	s.Fitted.TrainingLoss = 0
	s.Fitted.Coef[0][0] = 0
	s.Fitted.Intercept[1] = 1 / s.Fitted.Coef[0][0]

	_, err := Encode(nil, s)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestDecode_PartialHyperparams(t *testing.T) {
	defaults := model.DefaultHyperparams()
	s, err := Decode(nil, []byte(`{"format":"modelrt.linear","version":1,"learner":{"name":"ols","alpha":0}}`), defaults)
	require.NoError(t, err)
	assert.Equal(t, "ols", s.Params.Learner)
	assert.Equal(t, 0.0, s.Params.Alpha)
	assert.Equal(t, defaults.MaxIter, s.Params.MaxIter)
	assert.Nil(t, s.Fitted)
}

func TestDecode_Legacy(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		coef      [][]float64
		intercept []float64
		loss      float64
	}{
		{
			name:      "flat coef scalar intercept",
			text:      `{"coef":[2.0],"intercept":1.0,"loss":"squared_error"}`,
			coef:      [][]float64{{2}},
			intercept: []float64{1},
		},
		{
			name:      "array intercept",
			text:      `{"coef":[2.0,3.0],"intercept":[0.5],"loss":"squared_loss"}`,
			coef:      [][]float64{{2, 3}},
			intercept: []float64{0.5},
		},
		{
			name:      "numeric loss",
			text:      `{"coef":[[1.5]],"intercept":[0],"loss":0.25}`,
			coef:      [][]float64{{1.5}},
			intercept: []float64{0},
			loss:      0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(nil, []byte(tt.text), model.DefaultHyperparams())
			require.NoError(t, err)
			require.NotNil(t, s.Fitted)
			assert.Equal(t, tt.coef, s.Fitted.Coef)
			assert.Equal(t, tt.intercept, s.Fitted.Intercept)
			assert.Equal(t, tt.loss, s.Fitted.TrainingLoss)
			assert.Equal(t, model.LossSquaredError, s.Params.Loss)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	big := `{"coef":[` + strings.Repeat("1,", MaxTextSize/2) + `1],"intercept":0}`

	tests := []struct {
		name string
		text string
	}{
		{"empty", ``},
		{"too large", big},
		{"not json", `coef=1`},
		{"truncated", `{"format":"modelrt.linear","version":1,"coef":[[1]`},
		{"wrong format", `{"format":"other","version":1}`},
		{"missing version", `{"format":"modelrt.linear"}`},
		{"missing format", `{"version":1}`},
		{"future version", `{"format":"modelrt.linear","version":2}`},
		{"coef without intercept", `{"format":"modelrt.linear","version":1,"coef":[[1]]}`},
		{"intercept without coef", `{"format":"modelrt.linear","version":1,"intercept":[1]}`},
		{"flat coef in v1", `{"format":"modelrt.linear","version":1,"coef":[1],"intercept":[0]}`},
		{"scalar intercept in v1", `{"format":"modelrt.linear","version":1,"coef":[[1]],"intercept":0}`},
		{"ragged coef", `{"format":"modelrt.linear","version":1,"coef":[[1,2],[3]],"intercept":[0,0]}`},
		{"row count", `{"format":"modelrt.linear","version":1,"coef":[[1],[2]],"intercept":[0]}`},
		{"n_features", `{"format":"modelrt.linear","version":1,"n_features":3,"coef":[[1]],"intercept":[0]}`},
		{"n_outputs", `{"format":"modelrt.linear","version":1,"n_outputs":2,"coef":[[1]],"intercept":[0]}`},
		{"string element", `{"format":"modelrt.linear","version":1,"coef":[["1"]],"intercept":[0]}`},
		{"empty coef", `{"format":"modelrt.linear","version":1,"coef":[],"intercept":[]}`},
		{"bad learner", `{"format":"modelrt.linear","version":1,"learner":{"loss":"huber"}}`},
		{"negative n_iter", `{"format":"modelrt.linear","version":1,"coef":[[1]],"intercept":[0],"n_iter":-1}`},
	}

	for _, c := range codecs {
		for _, tt := range tests {
			t.Run(c.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := Decode(c, []byte(tt.text), model.DefaultHyperparams())
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrParse)
			})
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
	assert.Panics(t, func() { MustByName("msgpack") })
}
