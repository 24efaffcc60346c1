package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidateSignUp(t *testing.T) {
	tests := []struct {
		name          string
		input         SignUpInput
		wantEmailErr  bool
		wantPassErr   bool
		wantPassMatch string
	}{
		{
			name:  "正常",
			input: SignUpInput{Email: "ana@example.com", Password: "secreto1"},
		},
		{
			name:         "メールアドレス未入力",
			input:        SignUpInput{Email: "", Password: "secreto1"},
			wantEmailErr: true,
		},
		{
			name:         "メールアドレス形式不正",
			input:        SignUpInput{Email: "ana@", Password: "secreto1"},
			wantEmailErr: true,
		},
		{
			name:        "パスワードが短い",
			input:       SignUpInput{Email: "ana@example.com", Password: "a1"},
			wantPassErr: true,
		},
		{
			name:          "数字がない",
			input:         SignUpInput{Email: "ana@example.com", Password: "sololetras"},
			wantPassErr:   true,
			wantPassMatch: "al menos una letra y un número",
		},
		{
			name:          "英字がない",
			input:         SignUpInput{Email: "ana@example.com", Password: "12345678"},
			wantPassErr:   true,
			wantPassMatch: "al menos una letra y un número",
		},
		{
			name:        "長すぎる",
			input:       SignUpInput{Email: "ana@example.com", Password: strings.Repeat("a1", 40)},
			wantPassErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSignUp(tt.input)
			if !tt.wantEmailErr && !tt.wantPassErr {
				if err != nil {
					t.Fatalf("ValidateSignUp() error = %v, want nil", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %v, want ValidationErrors", err)
			}
			if got := verrs.ForField("email") != ""; got != tt.wantEmailErr {
				t.Errorf("emailエラーの有無 = %v, want %v", got, tt.wantEmailErr)
			}
			passMsg := verrs.ForField("password")
			if got := passMsg != ""; got != tt.wantPassErr {
				t.Errorf("passwordエラーの有無 = %v, want %v", got, tt.wantPassErr)
			}
			if tt.wantPassMatch != "" && !strings.Contains(passMsg, tt.wantPassMatch) {
				t.Errorf("passwordエラー = %q, %q を含むべき", passMsg, tt.wantPassMatch)
			}
		})
	}
}

func TestValidateSignUp_OneErrorPerField(t *testing.T) {
	// 短くて数字もないパスワードでもエラーは1件
	err := ValidateSignUp(SignUpInput{Email: "ana@example.com", Password: "abc"})

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(verrs) != 1 {
		t.Errorf("エラー件数 = %d, want 1", len(verrs))
	}
}

func TestValidateSignUp_SpanishMessages(t *testing.T) {
	err := ValidateSignUp(SignUpInput{})

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	msg := verrs.ForField("email")
	if !strings.Contains(msg, "correo electrónico") {
		t.Errorf("email message = %q, ラベルを含むべき", msg)
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := hashPassword("secreto1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}

	if !checkPassword(hash, "secreto1") {
		t.Error("正しいパスワードが一致しない")
	}
	if checkPassword(hash, "secreto2") {
		t.Error("誤ったパスワードが一致した")
	}
	if checkPassword(nil, "") {
		t.Error("空のハッシュが一致した")
	}
}
