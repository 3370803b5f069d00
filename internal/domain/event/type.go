package event

// Kind identifies which command chain applies to a case event
type Kind string

const (
	KindGodkjenningsbehov       Kind = "godkjenningsbehov"
	KindSaksbehandlerLøsning    Kind = "saksbehandler_løsning"
	KindVedtaksperiodeForkastet Kind = "vedtaksperiode_forkastet"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the defined constants
func (k Kind) IsValid() bool {
	switch k {
	case KindGodkjenningsbehov,
		KindSaksbehandlerLøsning,
		KindVedtaksperiodeForkastet:
		return true
	default:
		return false
	}
}

// NeedKind identifies a kind of information request (behov)
type NeedKind string

const (
	NeedPersoninfo      NeedKind = "HentPersoninfoV2"
	NeedEgenAnsatt      NeedKind = "EgenAnsatt"
	NeedÅpneOppgaver    NeedKind = "ÅpneOppgaver"
	NeedRisikovurdering NeedKind = "Risikovurdering"
)

// String returns the string representation of the need kind
func (n NeedKind) String() string {
	return string(n)
}

// Outbound domain event names
const (
	NameOppgaveOpprettet       = "oppgave_opprettet"
	NameOppgaveFerdigstilt     = "oppgave_ferdigstilt"
	NameOppgaveInvalidert      = "oppgave_invalidert"
	NameVedtaksperiodeGodkjent = "vedtaksperiode_godkjent"
	NameVedtaksperiodeAvvist   = "vedtaksperiode_avvist"
)
