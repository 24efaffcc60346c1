package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	es_translations "github.com/go-playground/validator/v10/translations/es"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/mindme/internal/model"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 6
	// MaxPasswordLength はbcryptが扱える最大バイト数。
	MaxPasswordLength = 72

	letterAndDigitTag = "letter_and_digit"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()

	spanish := es.New()
	uni := ut.New(spanish, spanish)
	translator, _ = uni.GetTranslator("es")
	_ = es_translations.RegisterDefaultTranslations(validate, translator)

	// エラーメッセージ中のフィールド名は利用者向けのラベルを使う
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("label")
	})

	_ = validate.RegisterValidation(letterAndDigitTag, letterAndDigit)
	_ = validate.RegisterTranslation(letterAndDigitTag, translator,
		func(ut.Translator) error { return nil },
		func(ut.Translator, validator.FieldError) string {
			return "La contraseña debe incluir al menos una letra y un número"
		},
	)
}

// SignUpInput はアカウント作成フォームの入力値。
type SignUpInput struct {
	Email    string `form:"email" label:"correo electrónico" validate:"required,email,max=320"`
	Password string `form:"password" label:"contraseña" validate:"required,min=6,max=72,letter_and_digit"`
}

// ValidationErrors はフィールドごとの入力エラー。
type ValidationErrors []*model.APIError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ForField は指定フィールドのエラーメッセージを返す。エラーがなければ空文字列。
func (v ValidationErrors) ForField(field string) string {
	for _, e := range v {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// ValidateSignUp はアカウント作成の入力を検証する。
// 問題がなければnil、あれば ValidationErrors を返す。
func ValidateSignUp(in SignUpInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate sign up input: %w", err)
	}

	result := make(ValidationErrors, 0, len(fieldErrs))
	seen := make(map[string]bool)
	for _, fe := range fieldErrs {
		// 1フィールドにつき最初のエラーのみ表示する
		field := formFieldName(fe.StructField())
		if seen[field] {
			continue
		}
		seen[field] = true
		result = append(result, model.NewValidationError(field, fe.Translate(translator)))
	}
	return result
}

// formFieldName はSignUpInputの構造体フィールド名をフォームのname属性に変換する。
func formFieldName(structField string) string {
	f, ok := reflect.TypeOf(SignUpInput{}).FieldByName(structField)
	if !ok {
		return structField
	}
	return f.Tag.Get("form")
}

// letterAndDigit は文字列に英字と数字の両方が含まれるかを検証する。
func letterAndDigit(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// hashPassword はパスワードのbcryptハッシュを生成する。
func hashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// checkPassword はパスワードがハッシュと一致するかを検証する。
func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
