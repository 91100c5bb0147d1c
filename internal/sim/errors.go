package sim

import "msmanager/internal/api"

// Error codes reported by the simulated backend.
const (
	CodeInvalidChannel     = "invalid_channel"
	CodeInvalidProfile     = "invalid_profile"
	CodeNoReleases         = "no_releases"
	CodeNoMatchingSet      = "no_matching_install_set"
	CodeNotInstalled       = "not_installed"
	CodeNoDevice           = "no_device"
	CodeFlashFailed        = "flash_failed"
	CodePayloadRootInvalid = "payload_root_invalid"
	CodeInvalidPath        = "io_invalid_path"
	CodeAppUpdateMissing   = "app_update_missing"
	CodeStorage            = "io_write_failed"
)

func failure(code, message string, details any) *api.Error {
	return api.NewError(code, message, details)
}
