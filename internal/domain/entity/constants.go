package entity

// Oppgave status constants
const (
	OppgaveAvventerSaksbehandler = "AvventerSaksbehandler"
	OppgaveFerdigstilt           = "Ferdigstilt"
	OppgaveInvalidert            = "Invalidert"
)

// Periodetype values carried by godkjenningsbehov
const (
	PeriodetypeFørstegangsbehandling = "FØRSTEGANGSBEHANDLING"
	PeriodetypeForlengelse           = "FORLENGELSE"
	PeriodetypeInfotrygdforlengelse  = "INFOTRYGDFORLENGELSE"
	PeriodetypeOvergangFraIT         = "OVERGANG_FRA_IT"
)

// Feature toggle names
const (
	FeatureRisikovurdering = "risikovurdering"
	FeatureAutomatisering  = "automatisering"
)
