//go:build linux

package i2c

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl from <linux/i2c-dev.h>.
const i2cSlave = 0x0703

type fileTransport struct {
	f    *os.File
	addr uint16
	set  bool
}

func openTransport(num int) (transport, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", num), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fileTransport{f: f}, nil
}

func (t *fileTransport) setAddr(addr uint16) error {
	if t.set && t.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(int(t.f.Fd()), i2cSlave, int(addr)); err != nil {
		return err
	}
	t.addr, t.set = addr, true
	return nil
}

func (t *fileTransport) read(p []byte) (int, error)  { return t.f.Read(p) }
func (t *fileTransport) write(p []byte) (int, error) { return t.f.Write(p) }
func (t *fileTransport) close() error                { return t.f.Close() }
