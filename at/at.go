package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Escape = "+++"
	Filler = "   "

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	Connect    = "CONNECT"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"

	// Commands
	CmdAt             = "AT"
	CmdIMEI           = "AT+GSN"
	CmdSimStatus      = "AT+CPIN?"
	CmdRegistration   = "AT+CREG?"
	CmdAttachStatus   = "AT+CGATT?"
	CmdAttach         = "AT+CGATT=1"
	CmdDefineContext  = `AT+CGDCONT=1,"IP","%s"`
	CmdContextAuth    = `AT+CGAUTH=1,1,"%s","%s"`
	CmdDial           = "ATD*99#"
	CmdOnline         = "ATO"
	CmdContextActive  = "AT+CGACT?"
	CmdHangup         = "ATH"
	CmdAddress        = "AT+CGPADDR=1"
	CmdTimeZoneReport = "AT+CTZR=1"
	CmdClock          = "AT+CCLK?"

	// Expected fragments
	SimReady        = "+CPIN: READY"
	RegisteredHome  = "+CREG: 0,1"
	RegisteredRoam  = "+CREG: 0,5"
	Attached        = "+CGATT: 1"
	ContextActive   = "+CGACT: 1,1"
	AddressPrefix   = "+CGPADDR:"
	ClockPrefix     = "+CCLK:"
	UrcRegistration = "+CREG:"
	UrcTimeZone     = "+CTZV:"
	UrcCall         = "RING"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CGPADDR: ...)
	TypeEcho                       // Command echo while ATE1 is active
)
