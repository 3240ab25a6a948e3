// Command osalsh is an interactive shell over a live OSAL instance. The
// kernel ticks in real time while commands create and poke tasks, queues and
// event groups.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"sparkrt/internal/buildinfo"
	"sparkrt/kernel"
	"sparkrt/osal"
)

const sessionKey = "$session"

var (
	tickHz = flag.Int("hz", kernel.DefaultTickHz, "Kernel tick rate.")

	commands = []*ishell.Cmd{
		&PsCmd,
		&SpawnCmd,
		&KillCmd,
		&SuspendCmd,
		&ResumeCmd,
		&PrioCmd,
		&TicksCmd,
		&QueueNewCmd,
		&QueueSendCmd,
		&QueueRecvCmd,
		&QueueResetCmd,
		&QueueLenCmd,
		&QueueDeleteCmd,
		&GroupNewCmd,
		&GroupSetCmd,
		&GroupClearCmd,
		&GroupGetCmd,
		&GroupWaitCmd,
		&GroupDeleteCmd,
	}
)

func sessionFrom(c *ishell.Context) *session {
	return c.Get(sessionKey).(*session)
}

// needArgs wraps a command that takes at least n arguments.
func needArgs(n int, fn func(c *ishell.Context, ss *session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) < n {
			c.Err(fmt.Errorf("expected at least %d arguments", n))
			return
		}
		fn(c, sessionFrom(c))
	}
}

func argMS(c *ishell.Context, i int, def uint32) (uint32, bool) {
	if len(c.Args) <= i {
		return def, true
	}
	ms, err := parseMS(c.Args[i])
	if err != nil {
		c.Err(err)
		return 0, false
	}
	return ms, true
}

func argUint32(c *ishell.Context, i int, what string) (uint32, bool) {
	n, err := strconv.ParseUint(c.Args[i], 10, 32)
	if err != nil {
		c.Err(fmt.Errorf("invalid %s %q", what, c.Args[i]))
		return 0, false
	}
	return uint32(n), true
}

func report(c *ishell.Context, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	c.Println("OK")
}

var (
	PsCmd = ishell.Cmd{
		Name:    "ps",
		Aliases: []string{"tasks"},
		Help:    "list tasks",
		Func: func(c *ishell.Context) {
			c.Print(sessionFrom(c).ps(context.Background()))
		},
	}

	SpawnCmd = ishell.Cmd{
		Name: "spawn",
		Help: "NAME PRIO [PERIOD_MS]",
		Func: needArgs(2, func(c *ishell.Context, ss *session) {
			prio, err := parsePriority(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			period, ok := argMS(c, 2, 1000)
			if !ok {
				return
			}
			if period == 0 || period == osal.WaitForever {
				c.Err(fmt.Errorf("PERIOD_MS must be finite and nonzero"))
				return
			}
			report(c, ss.spawn(context.Background(), c.Args[0], prio, period))
		}),
	}

	KillCmd = ishell.Cmd{
		Name: "kill",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.kill(context.Background(), c.Args[0]))
		}),
	}

	SuspendCmd = ishell.Cmd{
		Name: "suspend",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.suspend(context.Background(), c.Args[0]))
		}),
	}

	ResumeCmd = ishell.Cmd{
		Name: "resume",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.resume(context.Background(), c.Args[0]))
		}),
	}

	PrioCmd = ishell.Cmd{
		Name: "prio",
		Help: "NAME PRIO",
		Func: needArgs(2, func(c *ishell.Context, ss *session) {
			prio, err := parsePriority(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			report(c, ss.setPriority(context.Background(), c.Args[0], prio))
		}),
	}

	TicksCmd = ishell.Cmd{
		Name: "ticks",
		Help: "show the kernel tick count",
		Func: func(c *ishell.Context) {
			c.Println(sessionFrom(c).s.Kernel().TickCount())
		},
	}

	QueueNewCmd = ishell.Cmd{
		Name: "qnew",
		Help: "NAME DEPTH ITEM_BYTES",
		Func: needArgs(3, func(c *ishell.Context, ss *session) {
			depth, ok := argUint32(c, 1, "DEPTH")
			if !ok {
				return
			}
			size, ok := argUint32(c, 2, "ITEM_BYTES")
			if !ok {
				return
			}
			report(c, ss.queueNew(c.Args[0], depth, size))
		}),
	}

	QueueSendCmd = ishell.Cmd{
		Name: "qsend",
		Help: "NAME TEXT [TIMEOUT_MS|forever]",
		Func: needArgs(2, func(c *ishell.Context, ss *session) {
			timeout, ok := argMS(c, 2, 0)
			if !ok {
				return
			}
			report(c, ss.queueSend(context.Background(), c.Args[0], c.Args[1], timeout))
		}),
	}

	QueueRecvCmd = ishell.Cmd{
		Name: "qrecv",
		Help: "NAME [TIMEOUT_MS|forever]",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			timeout, ok := argMS(c, 1, 0)
			if !ok {
				return
			}
			text, err := ss.queueRecv(context.Background(), c.Args[0], timeout)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%q\n", text)
		}),
	}

	QueueResetCmd = ishell.Cmd{
		Name: "qreset",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.queueReset(context.Background(), c.Args[0]))
		}),
	}

	QueueLenCmd = ishell.Cmd{
		Name: "qlen",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			waiting, spaces, err := ss.queueLen(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("waiting=%d spaces=%d\n", waiting, spaces)
		}),
	}

	QueueDeleteCmd = ishell.Cmd{
		Name: "qdel",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.queueDelete(context.Background(), c.Args[0]))
		}),
	}

	GroupNewCmd = ishell.Cmd{
		Name: "egnew",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.groupNew(c.Args[0]))
		}),
	}

	GroupSetCmd = ishell.Cmd{
		Name: "egset",
		Help: "NAME BITS",
		Func: needArgs(2, func(c *ishell.Context, ss *session) {
			bits, err := parseBits(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			prev, err := ss.groupSet(context.Background(), c.Args[0], bits)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("was %#06x\n", prev)
		}),
	}

	GroupClearCmd = ishell.Cmd{
		Name: "egclear",
		Help: "NAME BITS",
		Func: needArgs(2, func(c *ishell.Context, ss *session) {
			bits, err := parseBits(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			prev, err := ss.groupClear(c.Args[0], bits)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("was %#06x\n", prev)
		}),
	}

	GroupGetCmd = ishell.Cmd{
		Name: "egget",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			bits, err := ss.groupGet(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%#06x\n", bits)
		}),
	}

	GroupWaitCmd = ishell.Cmd{
		Name: "egwait",
		Help: "NAME BITS any|all [TIMEOUT_MS|forever]",
		Func: needArgs(3, func(c *ishell.Context, ss *session) {
			bits, err := parseBits(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			var all bool
			switch c.Args[2] {
			case "all":
				all = true
			case "any":
			default:
				c.Err(fmt.Errorf("expected any or all, got %q", c.Args[2]))
				return
			}
			timeout, ok := argMS(c, 3, 0)
			if !ok {
				return
			}
			got, err := ss.groupWait(context.Background(), c.Args[0], bits, all, timeout)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%#06x\n", got)
		}),
	}

	GroupDeleteCmd = ishell.Cmd{
		Name: "egdel",
		Help: "NAME",
		Func: needArgs(1, func(c *ishell.Context, ss *session) {
			report(c, ss.groupDelete(context.Background(), c.Args[0]))
		}),
	}
)

func main() {
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	if *tickHz < 1 {
		fmt.Fprintf(os.Stderr, "invalid -hz %d\n", *tickHz)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	k := kernel.New(kernel.Config{TickHz: *tickHz})
	k.StartTick(ctx)
	s := osal.New(k)
	defer s.Close(context.Background())

	sh := ishell.New()
	sh.Set(sessionKey, newSession(s))
	sh.SetPrompt("osal> ")
	for _, cmd := range commands {
		sh.AddCmd(cmd)
	}

	if args := flag.Args(); len(args) > 0 {
		if err := sh.Process(args...); err != nil {
			glog.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}
	sh.Printf("osalsh %s, %d Hz tick\n", buildinfo.Short(), *tickHz)
	sh.Run()
}
