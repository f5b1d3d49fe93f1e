package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotFound      ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidExam       ErrCode = "INVALID_EXAM"
	ErrTimeWindow        ErrCode = "TIME_WINDOW_VIOLATION"
	ErrNotRegistered     ErrCode = "NOT_REGISTERED"
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrAlreadyCompleted  ErrCode = "ALREADY_COMPLETED"
	ErrPoolExhausted     ErrCode = "POOL_EXHAUSTED"
	ErrWrongExamMode     ErrCode = "WRONG_EXAM_MODE"
	ErrQuestionNotFound  ErrCode = "QUESTION_NOT_FOUND"
	ErrQuestionNotActive ErrCode = "QUESTION_NOT_ACTIVE"
	ErrAlreadyAnswered   ErrCode = "ALREADY_ANSWERED"
	ErrLateJoin          ErrCode = "LATE_JOIN"
	ErrAlreadyStarted    ErrCode = "SYNCHRONIZED_ALREADY_STARTED"
	ErrNotStarted        ErrCode = "SYNCHRONIZED_NOT_STARTED"
	ErrAdvanceInProgress ErrCode = "ADVANCE_IN_PROGRESS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidExam:
		return "Konfigurasi ujian tidak valid."
	case ErrTimeWindow:
		return "Ujian tidak dapat diakses di luar jadwal."
	case ErrNotRegistered:
		return "Nomor peserta tidak terdaftar untuk ujian ini."
	case ErrSessionNotFound:
		return "Sesi ujian tidak ditemukan. Silakan mulai ujian terlebih dahulu."
	case ErrAlreadyCompleted:
		return "Anda sudah menyelesaikan ujian ini."
	case ErrPoolExhausted:
		return "Bank soal tidak memiliki soal yang sesuai untuk ujian ini."
	case ErrWrongExamMode:
		return "Operasi ini tidak berlaku untuk mode ujian ini."
	case ErrQuestionNotFound:
		return "Soal tidak ditemukan."
	case ErrQuestionNotActive:
		return "Soal ini sedang tidak aktif."
	case ErrAlreadyAnswered:
		return "Soal ini sudah dijawab."
	case ErrLateJoin:
		return "Ujian sinkron sudah dimulai dan tidak menerima peserta terlambat."
	case ErrAlreadyStarted:
		return "Ujian sinkron sudah dimulai."
	case ErrNotStarted:
		return "Ujian sinkron belum dimulai."
	case ErrAdvanceInProgress:
		return "Perpindahan soal sedang diproses. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
