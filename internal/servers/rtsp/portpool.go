package rtsp

import (
	"fmt"
	"net"
	"sync"
)

// portPool hands out even/odd UDP port pairs (RTP on the even port,
// RTCP on the odd one) from a configured range, one pair per media
// transport. Pairs return to the pool when the transport is released.
type portPool struct {
	low  int
	high int

	mutex sync.Mutex
	inUse map[int]struct{} // keyed by the even RTP port
}

func newPortPool(low, high int) *portPool {
	if low%2 != 0 {
		low++
	}
	return &portPool{
		low:   low,
		high:  high,
		inUse: make(map[int]struct{}),
	}
}

// allocatePair binds an RTP/RTCP socket pair. Ports already handed out,
// or taken by other processes, are skipped.
func (p *portPool) allocatePair() (*net.UDPConn, *net.UDPConn, int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for port := p.low; port+1 <= p.high; port += 2 {
		if _, taken := p.inUse[port]; taken {
			continue
		}

		rtpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
		if err != nil {
			continue
		}
		rtcpConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}

		p.inUse[port] = struct{}{}
		return rtpConn, rtcpConn, port, nil
	}

	return nil, nil, 0, fmt.Errorf("no free RTP port pair in range %d-%d", p.low, p.high)
}

// release returns a pair to the pool. The caller closes the sockets.
func (p *portPool) release(rtpPort int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.inUse, rtpPort)
}

func (p *portPool) countInUse() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.inUse)
}
