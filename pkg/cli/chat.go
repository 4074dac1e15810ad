package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/integrasalud/integrasalud/pkg/knowledge"
	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/integrasalud/integrasalud/pkg/usecase/chat"
	"github.com/integrasalud/integrasalud/pkg/usecase/token"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg   config
		topic string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "topic",
			Aliases:     []string{"t"},
			Usage:       "Initial topic ID",
			Sources:     cli.EnvVars("INTEGRASALUD_TOPIC"),
			Destination: &topic,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive consultation in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			factory, err := cfg.newSessionFactory(ctx, nil, true)
			if err != nil {
				return err
			}
			session, err := factory.newSession(model.TopicID(topic))
			if err != nil {
				return err
			}

			term := newTerminal(session, factory.catalog, c.Root().Writer)
			term.spin = true
			return term.loop(ctx)
		},
	}
}

// terminal drives a chat session from a line editor. In the token view it
// asks for a health center and then a specialty by number.
type terminal struct {
	session *chat.Session
	catalog *knowledge.Catalog
	w       io.Writer
	spin    bool

	facility *model.Facility
}

func newTerminal(session *chat.Session, catalog *knowledge.Catalog, w io.Writer) *terminal {
	return &terminal{
		session: session,
		catalog: catalog,
		w:       w,
	}
}

const chatHelp = `Comandos:
  /topics        lista las áreas de consulta
  /topic <id>    cambia de área (borra el historial)
  /history       muestra el historial del área
  /forget        olvida las respuestas aprendidas
  /exit          sale`

func (x *terminal) loop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          x.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
		Stdout:          x.w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to initialize line editor")
	}
	defer rl.Close()

	x.banner()

	for {
		rl.SetPrompt(x.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		if x.handle(ctx, line) {
			return nil
		}
	}
}

func (x *terminal) prompt() string {
	if x.session.View() == model.ViewToken {
		if x.facility == nil {
			return "centro #> "
		}
		return "especialidad #> "
	}
	return x.session.Topic().Emoji + " > "
}

func (x *terminal) banner() {
	topic := x.session.Topic()
	fmt.Fprintf(x.w, "%s\n", topic.Title)
	if x.session.Online() {
		fmt.Fprintln(x.w, "Modo online activo.")
	} else {
		fmt.Fprintln(x.w, "Modo offline: solo respuestas del catálogo.")
	}
	fmt.Fprintf(x.w, "%s (/help para ver comandos)\n", topic.Placeholder)
}

// handle processes one input line and reports whether the user asked to quit
func (x *terminal) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		return x.command(line)
	}

	if x.session.View() == model.ViewToken {
		x.pick(line)
		return false
	}

	x.ask(ctx, line)
	return false
}

func (x *terminal) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true

	case "/help":
		fmt.Fprintln(x.w, chatHelp)

	case "/topics":
		current := x.session.Topic().ID
		for _, t := range x.catalog.Topics() {
			marker := " "
			if t.ID == current {
				marker = "*"
			}
			fmt.Fprintf(x.w, "%s %s %s (%s)\n", marker, t.Emoji, t.Name, t.ID)
		}

	case "/topic":
		if arg == "" {
			fmt.Fprintln(x.w, "Uso: /topic <id>")
			return false
		}
		if err := x.session.SelectTopic(model.TopicID(arg)); err != nil {
			fmt.Fprintf(x.w, "Área desconocida: %s\n", arg)
			return false
		}
		x.facility = nil
		topic := x.session.Topic()
		fmt.Fprintf(x.w, "%s\n%s\n", topic.Title, topic.Placeholder)

	case "/history":
		history := x.session.History()
		if len(history) == 0 {
			fmt.Fprintln(x.w, "Sin consultas en esta área.")
			return false
		}
		for _, h := range history {
			fmt.Fprintf(x.w, "> %s\n%s\n\n", h.Query, h.Answer)
		}

	case "/forget":
		x.session.ForgetLearned()
		fmt.Fprintln(x.w, "Respuestas aprendidas olvidadas.")

	case "/back":
		x.backToChat()

	default:
		fmt.Fprintf(x.w, "Comando desconocido: %s\n", name)
	}
	return false
}

func (x *terminal) ask(ctx context.Context, query string) {
	var s *spinner.Spinner
	if x.spin && x.session.Online() {
		s = spinner.New(spinner.CharSets[11], 100*time.Millisecond,
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" Pensando..."),
		)
		s.Start()
	}

	answer, err := x.session.Ask(ctx, query)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		fmt.Fprintf(x.w, "%v\n", err)
		return
	}

	fmt.Fprintf(x.w, "\n%s\n", answer.Provenance.Label())
	if answer.HasText() {
		fmt.Fprintf(x.w, "%s\n\n", answer.Text)
		return
	}

	x.facility = nil
	fmt.Fprintln(x.w, "Selecciona un centro de salud (0 para volver):")
	for i, f := range x.session.Topic().Facilities {
		fmt.Fprintf(x.w, "  %d. %s\n", i+1, f.Name)
	}
}

// pick reads a numbered choice in the token view
func (x *terminal) pick(line string) {
	n, err := strconv.Atoi(line)
	if err != nil {
		fmt.Fprintln(x.w, "Ingresa un número (0 para volver).")
		return
	}
	if n == 0 {
		x.backToChat()
		return
	}

	if x.facility == nil {
		facilities := x.session.Topic().Facilities
		if n < 1 || n > len(facilities) {
			fmt.Fprintln(x.w, "Número fuera de rango.")
			return
		}
		x.facility = facilities[n-1]
		fmt.Fprintf(x.w, "Especialidades en %s:\n", x.facility.Name)
		for i, sp := range x.facility.Specialties {
			fmt.Fprintf(x.w, "  %d. %s\n", i+1, sp)
		}
		return
	}

	if n < 1 || n > len(x.facility.Specialties) {
		fmt.Fprintln(x.w, "Número fuera de rango.")
		return
	}

	tk, err := x.session.IssueToken(x.facility.Name, x.facility.Specialties[n-1])
	if err != nil {
		fmt.Fprintf(x.w, "%v\n", err)
		return
	}
	fmt.Fprintf(x.w, "\n%s\n\n", token.Instructions(tk))
	x.backToChat()
}

func (x *terminal) backToChat() {
	x.facility = nil
	x.session.BackToChat()
}
