package commands

// Numeric reply codes, RPL_/ERR_ names from RFC 1459 §6.
const (
	rplWelcome  = "001"
	rplYourHost = "002"
	rplCreated  = "003"
	rplMyInfo   = "004"
	rplISupport = "005"

	rplChannelModeIs = "324"

	rplNoTopic     = "331"
	rplTopic       = "332"
	rplInviting    = "341"
	rplNamReply    = "353"
	rplEndOfWho    = "315"
	rplListStart   = "321"
	rplList        = "322"
	rplListEnd     = "323"
	rplEndOfNames  = "366"
	rplWhoReply    = "352"
	rplWhoIsUser   = "311"
	rplWhoIsServer = "312"
	rplWhoIsChans  = "319"
	rplEndOfWhoIs  = "318"

	errNoSuchNick       = "401"
	errNoSuchChannel    = "403"
	errCannotSendToChan = "404"
	errNoRecipient      = "411"
	errNoTextToSend     = "412"
	errUnknownCommand   = "421"
	errNoNicknameGiven  = "431"
	errErroneusNick     = "432"
	errNicknameInUse    = "433"
	errUserNotInChannel = "441"
	errNotOnChannel     = "442"
	errUserOnChannel    = "443"
	errNotRegistered    = "451"
	errNeedMoreParams   = "461"
	errAlreadyRegistred = "462"
	errPasswdMismatch   = "464"
	errChannelIsFull    = "471"
	errUnknownMode      = "472"
	errInviteOnlyChan   = "473"
	errBadChannelKey    = "475"
	errChanOPrivsNeeded = "482"
)
