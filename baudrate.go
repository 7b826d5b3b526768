package batdev

type BaudRate int

func (b BaudRate) Int() int {
	return int(b)
}

const (
	Baud300    BaudRate = 300
	Baud1200   BaudRate = 1200
	Baud4800   BaudRate = 4800
	Baud9600   BaudRate = 9600
	Baud14400  BaudRate = 14400
	Baud19200  BaudRate = 19200
	Baud28800  BaudRate = 28800
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200

	DefaultBaudRate = Baud38400
)

// SupportedBaudRates is the allow-list the device firmware can be built for.
// The firmware has no 2400 baud build.
var SupportedBaudRates = []BaudRate{
	Baud300, Baud1200, Baud4800, Baud9600, Baud14400,
	Baud19200, Baud28800, Baud38400, Baud57600, Baud115200,
}

// Valid reports whether b is in SupportedBaudRates.
func (b BaudRate) Valid() bool {
	for _, v := range SupportedBaudRates {
		if b == v {
			return true
		}
	}
	return false
}
