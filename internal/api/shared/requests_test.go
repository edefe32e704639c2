package shared

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantErr     error
		errContains string
	}{
		{name: "valid json", body: `{"item_id": "0b6c3f4e-5a3c-4d7c-9a1e-2f9f1e6b7c8d"}`},
		{name: "empty body", body: "", wantErr: ErrEmptyBody},
		{name: "trailing comma", body: `{"item_id": "x",}`, errContains: "invalid JSON body"},
		{name: "unknown field", body: `{"item_id": "x", "extra": 1}`, errContains: "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var target itemRequest
			err := DecodeJSON(req, &target)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			default:
				require.NoError(t, err)
				assert.Equal(t, "0b6c3f4e-5a3c-4d7c-9a1e-2f9f1e6b7c8d", target.ItemID)
			}
		})
	}
}

type selfValidating struct {
	fail bool
}

func (s *selfValidating) Validate() error {
	if s.fail {
		return errors.New("self validation failed")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateRequest(&itemRequest{ItemID: "0b6c3f4e-5a3c-4d7c-9a1e-2f9f1e6b7c8d"}))

	err := ValidateRequest(&itemRequest{ItemID: "not-a-uuid"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Equal(t, "uuid", validationErrs[0].Tag())

	assert.NoError(t, ValidateRequest(&selfValidating{}))
	assert.EqualError(t, ValidateRequest(&selfValidating{fail: true}), "self validation failed")
}
