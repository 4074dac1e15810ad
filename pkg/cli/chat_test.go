package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/integrasalud/integrasalud/pkg/model"
	"github.com/m-mizutani/gt"
)

func newTestTerminal(t *testing.T) (*terminal, *bytes.Buffer) {
	t.Helper()
	var cfg config
	factory, err := cfg.newSessionFactory(context.Background(), nil, false)
	gt.NoError(t, err)
	session, err := factory.newSession("")
	gt.NoError(t, err)

	var buf bytes.Buffer
	return newTerminal(session, factory.catalog, &buf), &buf
}

func TestTerminalAsk(t *testing.T) {
	term, buf := newTestTerminal(t)
	ctx := context.Background()

	gt.False(t, term.handle(ctx, "qué es el consentimiento"))
	gt.S(t, buf.String()).Contains("Respuesta Rápida (Offline)")
	gt.S(t, buf.String()).Contains("entusiasta, voluntario y claro")

	buf.Reset()
	gt.False(t, term.handle(ctx, "/history"))
	gt.S(t, buf.String()).Contains("> qué es el consentimiento")

	gt.False(t, term.handle(ctx, "   "))
	gt.True(t, term.handle(ctx, "/exit"))
}

func TestTerminalTopicCommands(t *testing.T) {
	term, buf := newTestTerminal(t)
	ctx := context.Background()

	term.handle(ctx, "preservativo")

	buf.Reset()
	term.handle(ctx, "/topics")
	gt.S(t, buf.String()).Contains("* 💬 Salud Sexual (sexual-health)")

	buf.Reset()
	term.handle(ctx, "/topic nutrition")
	gt.S(t, buf.String()).Contains("Asistente Nutricional")
	gt.Equal(t, term.session.Topic().ID, model.TopicID("nutrition"))
	gt.A(t, term.session.History()).Length(0)

	buf.Reset()
	term.handle(ctx, "/topic cardiology")
	gt.S(t, buf.String()).Contains("Área desconocida")
	gt.Equal(t, term.session.Topic().ID, model.TopicID("nutrition"))

	buf.Reset()
	term.handle(ctx, "/unknown")
	gt.S(t, buf.String()).Contains("Comando desconocido")
}

func TestTerminalTokenFlow(t *testing.T) {
	term, buf := newTestTerminal(t)
	ctx := context.Background()

	term.handle(ctx, "dame un turno")
	gt.Equal(t, term.session.View(), model.ViewToken)
	gt.S(t, buf.String()).Contains("3. Hospital Regional 'Dr. Ramón Carrillo'")
	gt.Equal(t, term.prompt(), "centro #> ")

	buf.Reset()
	term.handle(ctx, "9")
	gt.S(t, buf.String()).Contains("fuera de rango")

	buf.Reset()
	term.handle(ctx, "3")
	gt.S(t, buf.String()).Contains("3. Infectología")
	gt.Equal(t, term.prompt(), "especialidad #> ")

	buf.Reset()
	term.handle(ctx, "3")
	gt.S(t, buf.String()).Contains("Tu código de turno anónimo es:")
	gt.S(t, buf.String()).Contains("turno de Infectología")
	gt.Equal(t, term.session.View(), model.ViewChat)
	gt.A(t, term.session.History()).Length(0)
}

func TestTerminalTokenCancel(t *testing.T) {
	term, _ := newTestTerminal(t)
	ctx := context.Background()

	term.handle(ctx, "turno")
	gt.Equal(t, term.session.View(), model.ViewToken)

	term.handle(ctx, "0")
	gt.Equal(t, term.session.View(), model.ViewChat)
	gt.Equal(t, term.prompt(), "💬 > ")
}
