package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/pokeproto/pokebattle-backend/internal/config"
	"github.com/pokeproto/pokebattle-backend/internal/httpapi"
	"github.com/pokeproto/pokebattle-backend/internal/pokedex"
	"github.com/pokeproto/pokebattle-backend/internal/session"
	"github.com/pokeproto/pokebattle-backend/internal/transport"
	"github.com/pokeproto/pokebattle-backend/internal/ws"
)

// battleSession is what the REPL and observer API need from any role.
type battleSession interface {
	ws.Session
	Name() string
	Role() session.Role
	SendChatText(text string) error
	SendChatSticker(raw []byte) error
	LocalAddr() net.Addr
	Close() error
}

// attacker is the extra surface the two fighting roles have.
type attacker interface {
	Attack(moveName string) error
}

func main() {
	role := flag.String("role", "host", "host, join, or spectate")
	name := flag.String("name", "", "display name (default: the role)")
	mon := flag.String("pokemon", "", "combatant name (host and join)")
	hostAddr := flag.String("host", "", "host UDP address (join and spectate)")
	listen := flag.String("listen", "", "UDP bind address (overrides LISTEN_ADDR)")
	httpAddr := flag.String("http", "", "observer API bind address (overrides HTTP_ADDR)")
	envFile := flag.String("env", "", "optional .env file")
	list := flag.Bool("list", false, "list known pokemon and exit")
	flag.Parse()

	cfg := config.Load(*envFile)
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad LOG_LEVEL:", err)
		os.Exit(1)
	}
	defer log.Sync()

	dex, err := pokedex.Load(cfg.PokedexPath)
	if err != nil {
		log.Fatal("loading pokedex", zap.Error(err))
	}
	if *list {
		for _, n := range dex.List(0) {
			fmt.Println(n)
		}
		return
	}
	if *name == "" {
		*name = *role
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tr, err := transport.Listen(*name, cfg.ListenAddr, cfg.Transport, log)
	if err != nil {
		log.Fatal("binding battle socket", zap.Error(err))
	}

	sess, atk, err := buildSession(ctx, *role, *name, *mon, *hostAddr, dex, tr, log)
	if err != nil {
		log.Fatal("starting session", zap.Error(err))
	}
	defer sess.Close()
	fmt.Printf("%s session %q on %s\n", sess.Role(), sess.Name(), sess.LocalAddr())

	if cfg.HTTPAddr != "" {
		go func() {
			log.Info("observer api listening", zap.String("addr", cfg.HTTPAddr))
			if err := http.ListenAndServe(cfg.HTTPAddr, httpapi.SetupRoutes(sess)); err != nil {
				log.Warn("observer api stopped", zap.Error(err))
			}
		}()
	}

	go printEvents(ctx, sess)
	repl(ctx, sess, atk)
}

func buildSession(ctx context.Context, role, name, mon, hostAddr string, dex *pokedex.Dex, tr *transport.Transport, log *zap.Logger) (battleSession, attacker, error) {
	switch role {
	case "host":
		if mon == "" {
			return nil, nil, fmt.Errorf("host needs -pokemon")
		}
		h, err := session.NewHost(name, mon, dex, tr, log)
		if err != nil {
			return nil, nil, err
		}
		h.Start(ctx)
		return h, h, nil

	case "join":
		if mon == "" || hostAddr == "" {
			return nil, nil, fmt.Errorf("join needs -pokemon and -host")
		}
		addr, err := net.ResolveUDPAddr("udp", hostAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving host address: %w", err)
		}
		j, err := session.NewJoiner(name, mon, addr, dex, tr, log)
		if err != nil {
			return nil, nil, err
		}
		j.Start(ctx)
		if err := j.Handshake(); err != nil {
			return nil, nil, err
		}
		return j, j, nil

	case "spectate":
		if hostAddr == "" {
			return nil, nil, fmt.Errorf("spectate needs -host")
		}
		addr, err := net.ResolveUDPAddr("udp", hostAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving host address: %w", err)
		}
		s := session.NewSpectator(name, addr, dex, tr, log)
		s.Start(ctx)
		if err := s.Join(); err != nil {
			return nil, nil, err
		}
		return s, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown role %q", role)
	}
}

// printEvents narrates the battle on stdout alongside the prompt.
func printEvents(ctx context.Context, sess battleSession) {
	out := make(chan session.Event, 64)
	sess.Subscribe("repl", out)
	defer sess.Unsubscribe("repl")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				return
			}
			switch ev.Type {
			case session.EvtSetup:
				fmt.Printf("* %s enters with %d HP\n", ev.Pokemon, ev.HP)
			case session.EvtTurnChanged:
				fmt.Printf("* It is the %s's turn\n", ev.Turn)
			case session.EvtAttack:
				fmt.Printf("* %s uses %s\n", ev.Attacker, ev.Move)
			case session.EvtDamage:
				hp := 0
				if ev.DefenderHP != nil {
					hp = *ev.DefenderHP
				}
				fmt.Printf("* %s (defender at %d HP)\n", ev.Status, hp)
			case session.EvtChat:
				if ev.Sticker {
					fmt.Printf("[%s] sent a sticker\n", ev.Sender)
				} else {
					fmt.Printf("[%s] %s\n", ev.Sender, ev.Text)
				}
			case session.EvtGameOver:
				fmt.Printf("* GAME OVER: %s wins (%s)\n", ev.Winner, ev.Reason)
			}
		}
	}
}

func repl(ctx context.Context, sess battleSession, atk attacker) {
	sc := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Print("> ") }

	fmt.Println(`commands: attack [move], chat <text>, sticker <file>, status, moves, exit`)
	prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "":
		case "exit", "quit":
			return

		case "status":
			snap := sess.Snapshot()
			fmt.Printf("host %s: %d HP | joiner %s: %d HP | turn: %s\n",
				snap.HostPokemon, snap.State.HostHP,
				snap.JoinerPokemon, snap.State.JoinerHP, snap.State.Turn)
			if snap.State.GameOver {
				fmt.Printf("battle over: %s wins (%s)\n", snap.State.Winner, snap.State.Reason)
			}

		case "moves":
			for i, m := range sess.AvailableMoves() {
				fmt.Printf("  %d) %s\n", i+1, m)
			}

		case "attack":
			if atk == nil {
				fmt.Println("spectators cannot attack")
				break
			}
			move := strings.TrimSpace(rest)
			if move == "" {
				move = pickMove(sc, sess.AvailableMoves())
				if move == "" {
					break
				}
			}
			if err := atk.Attack(move); err != nil {
				fmt.Println("cannot attack:", err)
			}

		case "chat":
			if rest == "" {
				fmt.Println("usage: chat <text>")
				break
			}
			if err := sess.SendChatText(rest); err != nil {
				fmt.Println("chat failed:", err)
			}

		case "sticker":
			if rest == "" {
				fmt.Println("usage: sticker <file>")
				break
			}
			raw, err := os.ReadFile(strings.TrimSpace(rest))
			if err != nil {
				fmt.Println("cannot read sticker:", err)
				break
			}
			if err := sess.SendChatSticker(raw); err != nil {
				fmt.Println("sticker failed:", err)
			}

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		prompt()
	}
}

// pickMove shows a numbered menu and reads one selection.
func pickMove(sc *bufio.Scanner, moves []string) string {
	if len(moves) == 0 {
		fmt.Println("no moves available yet")
		return ""
	}
	for i, m := range moves {
		fmt.Printf("  %d) %s\n", i+1, m)
	}
	fmt.Print("move> ")
	if !sc.Scan() {
		return ""
	}
	choice := strings.TrimSpace(sc.Text())
	if n, err := strconv.Atoi(choice); err == nil {
		if n >= 1 && n <= len(moves) {
			return moves[n-1]
		}
		fmt.Println("no such move")
		return ""
	}
	return choice
}
