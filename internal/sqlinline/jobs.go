package sqlinline

const QCreateScheduledJobsTable = `--sql 8c7cc781-6483-4bd4-b8e7-66d1db0779f6
create table if not exists scheduled_jobs (
    id bigserial primary key,
    job_type text not null,
    run_at timestamptz not null,
    status text not null check (status in ('DRAFT', 'SCHEDULED', 'RUNNING', 'COMPLETED', 'FAILED')),
    params jsonb not null default '{}'::jsonb,
    result jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists scheduled_jobs_status_run_at_idx on scheduled_jobs (status, run_at);
`

const QInsertScheduledJob = `--sql 58380265-fa77-4745-bb97-c20a943860f3
insert into scheduled_jobs (job_type, run_at, status, params, created_at, updated_at)
values ($1, $2, $3, $4::jsonb, now(), now())
returning id::text;
`

const QUpdateScheduledJobStatus = `--sql 92228a4c-8f83-4352-b3bc-f267c95327ff
update scheduled_jobs
set status = $2,
    result = $3::jsonb,
    updated_at = now()
where id = $1::bigint;
`

const QListRecentScheduledJobs = `--sql 2bddece7-5ee4-4f54-b911-7d6083d71c1f
select id::text, job_type, run_at, status, params, result, created_at, updated_at
from scheduled_jobs
order by created_at desc, id desc
limit $1;
`

const QCountScheduledJobsByStatus = `--sql 331663db-d099-44f9-9272-e061d063be1f
select status, count(*)
from scheduled_jobs
group by status
order by status;
`
