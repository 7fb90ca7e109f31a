package customer

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPerson(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name    string
		input   PersonInput
		wantErr error
	}{
		{"email only", PersonInput{Keys: CandidateKeys{Email: "A@X.com"}}, nil},
		{"source id only", PersonInput{Keys: CandidateKeys{SourceID: "123"}}, nil},
		{"name only", PersonInput{Name: "Ada"}, nil},
		{"phone only is not enough", PersonInput{Phone: "+1 555"}, ErrInsufficientKeyMaterial},
		{"nothing", PersonInput{}, ErrInsufficientKeyMaterial},
		{"invalid email is dropped", PersonInput{Keys: CandidateKeys{Email: "not-an-email"}}, ErrInsufficientKeyMaterial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPerson(tenantID, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tenantID, p.TenantID)
		})
	}
}

func TestPerson_ApplyNormalizesEmail(t *testing.T) {
	p, err := NewPerson(uuid.New(), PersonInput{Keys: CandidateKeys{Email: "  A@X.COM "}})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", p.Email)

	p.Apply(PersonInput{Keys: CandidateKeys{SourceID: "123"}})
	assert.Equal(t, "123", p.SourceID)
	assert.Equal(t, "a@x.com", p.Email, "empty input must not clear existing values")
}

func TestPerson_AbsorbFrom(t *testing.T) {
	tenantID := uuid.New()
	orgID := uuid.New()

	keep, _ := NewPerson(tenantID, PersonInput{Keys: CandidateKeys{Email: "keep@x.com"}})
	keep.SetAttributes(map[string]any{"plan": "pro"})

	discard, _ := NewPerson(tenantID, PersonInput{
		Keys:           CandidateKeys{Email: "other@x.com", SourceID: "s-1"},
		Name:           "Discarded",
		Phone:          "+1",
		OrganizationID: &orgID,
	})
	discard.SetAttributes(map[string]any{"plan": "free", "seats": 3})

	keep.AbsorbFrom(discard)

	assert.Equal(t, "keep@x.com", keep.Email, "non-empty field kept")
	assert.Equal(t, "Discarded", keep.Name)
	assert.Equal(t, "+1", keep.Phone)
	assert.Equal(t, "s-1", keep.SourceID)
	require.NotNil(t, keep.OrganizationID)
	assert.Equal(t, orgID, *keep.OrganizationID)
	assert.Equal(t, "pro", keep.Attributes["plan"])
	assert.Equal(t, 3, keep.Attributes["seats"])
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "x.com", EmailDomain("a@X.com"))
	assert.Equal(t, "", EmailDomain("nope"))
	assert.Equal(t, "", EmailDomain("a@"))
	assert.True(t, IsFreeMailDomain("GMAIL.com"))
	assert.False(t, IsFreeMailDomain("acme.io"))
}

func TestAmbiguousMatchError(t *testing.T) {
	id := uuid.New()
	err := error(&AmbiguousMatchError{Reason: "domain acme.io", Candidates: []uuid.UUID{id}})

	assert.True(t, errors.Is(err, ErrAmbiguousMatch))
	assert.Contains(t, err.Error(), id.String())

	var amb *AmbiguousMatchError
	require.True(t, errors.As(err, &amb))
	assert.Len(t, amb.Candidates, 1)
}

func TestNewOrganization(t *testing.T) {
	_, err := NewOrganization(uuid.New(), OrganizationInput{})
	assert.ErrorIs(t, err, ErrInsufficientKeyMaterial)

	o, err := NewOrganization(uuid.New(), OrganizationInput{Name: " acme inc "})
	require.NoError(t, err)
	assert.Equal(t, "ACME INC", o.NormalizedName())
}
