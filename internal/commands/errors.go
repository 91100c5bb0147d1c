package commands

import "errors"

var (
	errAckRequired     = errors.New("this action needs confirmation (pass --yes)")
	errChannelRequired = errors.New("channel name is required")
	errProfileRequired = errors.New("profile name is required")
	errPathRequired    = errors.New("target folder is required")
	errJournalDisabled = errors.New("activity archive is disabled (drop --no-journal)")
	errActionSkipped   = errors.New("action did not run: another action is in progress")
)
