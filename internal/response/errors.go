package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrAttemptNotStarted  ErrCode = "ATTEMPT_NOT_STARTED"
	ErrAttemptCompleted   ErrCode = "ATTEMPT_COMPLETED"
	ErrNotCurrentQuestion ErrCode = "NOT_CURRENT_QUESTION"
	ErrOperationInFlight  ErrCode = "OPERATION_IN_FLIGHT"

	// ─── Backend ───────────────────────────────────────────────────────
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"
	ErrBackendRejected    ErrCode = "BACKEND_REJECTED"
	ErrProtocolViolation  ErrCode = "PROTOCOL_VIOLATION"

	// ─── Journal ───────────────────────────────────────────────────────
	ErrJournalDisabled ErrCode = "JOURNAL_DISABLED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan jenis soal."

	case ErrAttemptNotStarted:
		return "Ujian belum dimulai."
	case ErrAttemptCompleted:
		return "Ujian sudah selesai dan tidak dapat diubah."
	case ErrNotCurrentQuestion:
		return "Hanya soal yang sedang aktif yang dapat dijawab."
	case ErrOperationInFlight:
		return "Jawaban sedang dikirim. Silakan tunggu."

	case ErrBackendUnavailable:
		return "Server ujian tidak dapat dihubungi. Silakan coba lagi."
	case ErrBackendRejected:
		return "Server ujian menolak permintaan."
	case ErrProtocolViolation:
		return "Respons server ujian tidak lengkap (waktu server tidak ada)."

	case ErrJournalDisabled:
		return "Jurnal aktivitas tidak diaktifkan."

	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
