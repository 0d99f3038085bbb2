package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeSecrets struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	id  string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.id = aws.ToString(in.SecretId)
	return f.out, f.err
}

func TestSecretsManagerProvider(t *testing.T) {
	tests := []struct {
		name    string
		out     *secretsmanager.GetSecretValueOutput
		field   string
		want    string
		wantErr bool
	}{
		{
			name: "json secret default field",
			out:  &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"fakeToken":"tok-123","other":"x"}`)},
			want: "tok-123",
		},
		{
			name:  "json secret custom field",
			out:   &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"deviceToken":"abc"}`)},
			field: "deviceToken",
			want:  "abc",
		},
		{
			name: "plain string secret",
			out:  &secretsmanager.GetSecretValueOutput{SecretString: aws.String("  plain-token\n")},
			want: "plain-token",
		},
		{
			name: "binary secret",
			out:  &secretsmanager.GetSecretValueOutput{SecretBinary: []byte(`{"fakeToken":"bin"}`)},
			want: "bin",
		},
		{
			name:    "missing field",
			out:     &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"other":"x"}`)},
			wantErr: true,
		},
		{
			name:    "non-string field",
			out:     &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"fakeToken":42}`)},
			wantErr: true,
		},
		{
			name:    "broken json",
			out:     &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"fakeToken":`)},
			wantErr: true,
		},
		{
			name:    "empty secret",
			out:     &secretsmanager.GetSecretValueOutput{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSecrets{out: tt.out}
			p := NewSecretsManagerProvider(fake, "limitgate/token", tt.field)

			got, err := p.FetchToken(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrSecretUnavailable) {
					t.Fatalf("error = %v, want ErrSecretUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if got != tt.want {
				t.Fatalf("token = %q, want %q", got, tt.want)
			}
			if fake.id != "limitgate/token" {
				t.Fatalf("secret id = %q", fake.id)
			}
		})
	}
}

func TestSecretsManagerProviderTransportError(t *testing.T) {
	p := NewSecretsManagerProvider(&fakeSecrets{err: errors.New("throttled")}, "id", "")
	if _, err := p.FetchToken(context.Background()); !errors.Is(err, ErrSecretUnavailable) {
		t.Fatalf("error = %v", err)
	}
}

func TestStatic(t *testing.T) {
	if tok, err := Static("dev-token").FetchToken(context.Background()); err != nil || tok != "dev-token" {
		t.Fatalf("static = %q, %v", tok, err)
	}
	if _, err := Static("").FetchToken(context.Background()); !errors.Is(err, ErrSecretUnavailable) {
		t.Fatalf("empty static error = %v", err)
	}
}
