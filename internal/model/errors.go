package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, survey, system
	Action   string // ユーザー向け対処方法
	Field    string // 入力欄に紐づくエラーの場合のフィールド名
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidAnswer      = "INVALID_ANSWER"
	ErrCodeSurveyInProgress   = "SURVEY_IN_PROGRESS"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeOAuthUnavailable   = "OAUTH_UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRF               = "CSRF_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Necesitas iniciar sesión.",
		Category: "auth",
		Action:   "Inicia sesión para continuar.",
	}
}

// NewForbiddenError は管理者権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "No tienes permisos para acceder al dashboard.",
		Category: "auth",
		Action:   "Solicita acceso a un administrador.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Correo o contraseña incorrectos.",
		Category: "auth",
		Action:   "Revisa tus datos e inténtalo de nuevo.",
	}
}

// NewEmailTakenError は登録済みメールアドレスで新規登録しようとした場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Ya existe una cuenta con este correo.",
		Category: "auth",
		Action:   "Inicia sesión o usa otro correo.",
		Field:    "email",
	}
}

// NewValidationError は入力欄に紐づく検証エラーを生成する。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Corrige el campo indicado.",
		Field:    field,
	}
}

// NewInvalidAnswerError はアンケートの回答値が不正な場合のエラーを生成する。
func NewInvalidAnswerError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAnswer,
		Message:  fmt.Sprintf("Respuesta no válida: %s", reason),
		Category: "survey",
		Action:   "Selecciona una de las opciones disponibles.",
		Field:    field,
	}
}

// NewSurveyInProgressError は送信処理中に再送信された場合のエラーを生成する。
func NewSurveyInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSurveyInProgress,
		Message:  "La encuesta ya se está guardando.",
		Category: "survey",
		Action:   "Espera a que termine el guardado.",
	}
}

// NewOAuthUnavailableError はGoogleログインが利用できない場合のエラーを生成する。
func NewOAuthUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthUnavailable,
		Message:  "No se pudo iniciar sesión con Google.",
		Category: "auth",
		Action:   "Inténtalo de nuevo o usa tu correo y contraseña.",
	}
}

// NewNotFoundError はページが存在しない場合のエラーを生成する。
func NewNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("Página no encontrada: %s", path),
		Category: "system",
		Action:   "Vuelve al inicio.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Espera un momento e inténtalo de nuevo.",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Demasiadas solicitudes.",
		Category: "system",
		Action:   "Espera un momento y vuelve a intentarlo.",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "La sesión del formulario expiró.",
		Category: "auth",
		Action:   "Recarga la página y vuelve a enviar el formulario.",
	}
}
