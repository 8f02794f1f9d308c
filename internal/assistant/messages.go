package assistant

import (
	"fmt"

	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
)

// userMessage maps a typed error to the sentence the user sees. Raw
// internal error text never reaches the user.
func userMessage(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.CodeAuthExpired:
		return "Please reconnect your account to continue."
	case apperrors.CodeTransient, apperrors.CodeRateLimited:
		return "The planning service is temporarily unavailable. Please try again in a moment."
	case apperrors.CodeNotFound:
		return "That item no longer exists."
	case apperrors.CodePermissionDenied:
		return "You don't have access to that."
	case apperrors.CodeConflict:
		return "That item was changed by someone else just now. Please check it and try again."
	case apperrors.CodeValidation:
		metadata := apperrors.GetMetadata(err)
		if span := metadata["span"]; span != "" {
			return fmt.Sprintf("I couldn't make sense of %q. Could you rephrase that part?", span)
		}
		return "Something in that request didn't make sense to me. Could you rephrase it?"
	default:
		return "I didn't understand that. Could you rephrase it?"
	}
}
