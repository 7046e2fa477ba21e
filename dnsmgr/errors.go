package dnsmgr

import (
	"errors"
	"os"
	"strings"
)

// Sentinel errors for the failure modes the manager can surface. Callers
// classify with errors.Is; each is wrapped with operation context.
var (
	// ErrNoInterfacesFound indicates no usable network interfaces exist or
	// the enumeration was denied.
	ErrNoInterfacesFound = errors.New("no network interfaces found")

	// ErrInterfaceNotFound indicates the given interface identifier does not
	// exist on this host.
	ErrInterfaceNotFound = errors.New("interface not found")

	// ErrPermissionDenied indicates the OS refused the read or write. Usually
	// means the tool needs to run with elevated privileges.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidAddress indicates the target address list failed validation.
	// The system configuration is left untouched.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrApplyFailed covers any other OS-level rejection of a write.
	ErrApplyFailed = errors.New("apply failed")

	// ErrNothingToRestore indicates no previous configuration was captured,
	// neither in memory nor in the state file.
	ErrNothingToRestore = errors.New("no previous configuration to restore")
)

// classifyApplyError maps a raw backend error onto the sentinel it belongs
// to. Permission problems come back in several shapes depending on the
// backend: as os errors from the file backend, or as D-Bus AccessDenied /
// polkit rejections rendered into the error text.
func classifyApplyError(err error) error {
	if err == nil {
		return nil
	}
	if isPermissionError(err) {
		return errors.Join(ErrPermissionDenied, err)
	}
	return errors.Join(ErrApplyFailed, err)
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"permission denied",
		"access denied",
		"accessdenied",
		"not authorized",
		"interactive authentication required",
		"operation not permitted",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
