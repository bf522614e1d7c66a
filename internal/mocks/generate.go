package mocks

//go:generate mockery --name Store --srcpkg github.com/aevon-lab/eventbridge/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name Publisher --srcpkg github.com/aevon-lab/eventbridge/internal/stream --output ./stream --outpkg streammocks --with-expecter
//go:generate mockery --name UserStore --srcpkg github.com/aevon-lab/eventbridge/internal/auth --output ./auth --outpkg authmocks --with-expecter
